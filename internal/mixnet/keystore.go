package mixnet

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/argon2"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const (
	seedSize = 32
	saltSize = 16

	maxKeyTime    = 16
	maxKeyMemory  = 1024 * 1024
	maxKeyThreads = 64
)

// ErrWrongPassword is returned when a stored keystore cannot be opened.
var ErrWrongPassword = &apperrors.AppError{
	Code:    "KEYSTORE_LOCKED",
	Message: "keystore password is incorrect",
	Status:  http.StatusUnauthorized,
	Err:     apperrors.ErrUnauthorized,
}

// KeyParams are the argon2id cost parameters stored with each record.
type KeyParams struct {
	Time    uint32 `json:"t"`
	Memory  uint32 `json:"m"`
	Threads uint8  `json:"p"`
}

func DefaultKeyParams() KeyParams {
	return KeyParams{Time: 1, Memory: 64 * 1024, Threads: 4}
}

func (p KeyParams) valid() bool {
	return p.Time >= 1 && p.Time <= maxKeyTime &&
		p.Memory >= 8*uint32(p.Threads) && p.Memory <= maxKeyMemory &&
		p.Threads >= 1 && p.Threads <= maxKeyThreads
}

type keystoreRecord struct {
	Version    int       `json:"v"`
	Params     KeyParams `json:"kdf"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ct"`
}

// Identity is the unlocked mixnet identity of one user.
type Identity struct {
	Seed []byte
}

// ReceptionID is the public identifier derived from the seed.
func (i Identity) ReceptionID() string {
	sum := sha256.Sum256(i.Seed)
	return hex.EncodeToString(sum[:16])
}

// Keystore seals identities under a user password and persists them.
type Keystore struct {
	repo   repository.KeystoreRepository
	params KeyParams
	rand   io.Reader
}

func NewKeystore(repo repository.KeystoreRepository, params KeyParams) *Keystore {
	return &Keystore{repo: repo, params: params, rand: rand.Reader}
}

// Unlock opens the user's identity, creating and storing a fresh one when no
// record exists yet. When two callers race on the first create, the loser
// opens the winner's record.
func (k *Keystore) Unlock(ctx context.Context, userID, password string) (Identity, error) {
	data, err := k.repo.Load(ctx, userID)
	switch {
	case err == nil:
		return k.open(password, data)
	case errors.Is(err, apperrors.ErrNotFound):
		return k.create(ctx, userID, password)
	default:
		return Identity{}, fmt.Errorf("load keystore: %w", err)
	}
}

func (k *Keystore) create(ctx context.Context, userID, password string) (Identity, error) {
	seed := make([]byte, seedSize)
	if _, err := io.ReadFull(k.rand, seed); err != nil {
		return Identity{}, fmt.Errorf("generate seed: %w", err)
	}
	data, err := k.seal(password, seed)
	if err != nil {
		return Identity{}, err
	}
	err = k.repo.Create(ctx, userID, data)
	switch {
	case err == nil:
		return Identity{Seed: seed}, nil
	case errors.Is(err, apperrors.ErrAlreadyExists):
		stored, err := k.repo.Load(ctx, userID)
		if err != nil {
			return Identity{}, fmt.Errorf("load keystore: %w", err)
		}
		return k.open(password, stored)
	default:
		return Identity{}, fmt.Errorf("save keystore: %w", err)
	}
}

func (k *Keystore) seal(password string, seed []byte) ([]byte, error) {
	rec := keystoreRecord{Version: 1, Params: k.params, Salt: make([]byte, saltSize)}
	if _, err := io.ReadFull(k.rand, rec.Salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(password, rec.Salt, rec.Params)
	if err != nil {
		return nil, err
	}
	rec.Nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(k.rand, rec.Nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	rec.Ciphertext = gcm.Seal(nil, rec.Nonce, seed, nil)
	return json.Marshal(rec)
}

func (k *Keystore) open(password string, data []byte) (Identity, error) {
	var rec keystoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Identity{}, fmt.Errorf("decode keystore: %w", err)
	}
	if !rec.Params.valid() {
		return Identity{}, fmt.Errorf("decode keystore: kdf params out of range (t=%d m=%d p=%d)",
			rec.Params.Time, rec.Params.Memory, rec.Params.Threads)
	}
	gcm, err := newGCM(password, rec.Salt, rec.Params)
	if err != nil {
		return Identity{}, err
	}
	if len(rec.Nonce) != gcm.NonceSize() {
		return Identity{}, errors.New("keystore nonce has wrong size")
	}
	seed, err := gcm.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return Identity{}, ErrWrongPassword
	}
	return Identity{Seed: seed}, nil
}

func newGCM(password string, salt []byte, p KeyParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
