package ndf

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Node is the subset of an NDF node entry used for health reporting.
// Status 0 means the node is active.
type Node struct {
	ID      string `json:"Id"`
	Address string `json:"Address"`
	Status  int    `json:"Status"`
}

// Document is a decoded network definition file.
type Document struct {
	Timestamp time.Time       `json:"Timestamp"`
	Nodes     []Node          `json:"Nodes"`
	Gateways  json.RawMessage `json:"Gateways,omitempty"`
}

// ActiveNodes counts nodes reporting status 0.
func (d *Document) ActiveNodes() int {
	n := 0
	for _, node := range d.Nodes {
		if node.Status == 0 {
			n++
		}
	}
	return n
}

type signedEnvelope struct {
	Ndf       string `json:"Ndf"`
	Signature struct {
		Nonce     string `json:"Nonce"`
		Signature string `json:"Signature"`
	} `json:"Signature"`
}

var errEmptyDocument = errors.New("empty ndf document")

// Parse accepts either the signed envelope published by the permissioning
// server ({"Ndf": base64, "Signature": {...}}) or a bare NDF document. It
// returns the raw NDF JSON, the signature (empty for bare documents) and the
// decoded document.
func Parse(body []byte) (raw []byte, signature string, doc *Document, err error) {
	if len(body) == 0 {
		return nil, "", nil, errEmptyDocument
	}

	var env signedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", nil, fmt.Errorf("decode ndf payload: %w", err)
	}

	raw = body
	if env.Ndf != "" {
		raw, err = base64.StdEncoding.DecodeString(env.Ndf)
		if err != nil {
			return nil, "", nil, fmt.Errorf("decode signed ndf: %w", err)
		}
		signature = env.Signature.Signature
	}

	doc = &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, "", nil, fmt.Errorf("decode ndf document: %w", err)
	}
	return raw, signature, doc, nil
}
