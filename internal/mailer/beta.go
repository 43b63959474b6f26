package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const betaSubject = "Welcome to the xxVPN beta"

var betaText = texttemplate.Must(texttemplate.New("beta.txt").Parse(`Hi {{.Name}},

Thanks for signing up for the xxVPN beta. We have received your request and
will email {{.Email}} as soon as a spot opens up.

xxVPN routes your traffic through the xx network mixnet, so neither we nor
the network can link what you do to who you are.

The xxVPN team
`))

var betaHTML = htmltemplate.Must(htmltemplate.New("beta.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a1a;">
  <h1>Welcome, {{.Name}}!</h1>
  <p>Thanks for signing up for the <strong>xxVPN</strong> beta. We have received your request and will email <strong>{{.Email}}</strong> as soon as a spot opens up.</p>
  <p>xxVPN routes your traffic through the xx network mixnet, so neither we nor the network can link what you do to who you are.</p>
  <p>The xxVPN team</p>
</body>
</html>
`))

// BetaConfirmation renders the beta signup confirmation for name and email.
// Values are HTML escaped in the HTML part.
func BetaConfirmation(name, email string) (Message, error) {
	data := struct{ Name, Email string }{Name: name, Email: email}

	var text, html bytes.Buffer
	if err := betaText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render beta text: %w", err)
	}
	if err := betaHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render beta html: %w", err)
	}
	return Message{
		To:       email,
		Subject:  betaSubject,
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
