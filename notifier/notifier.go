// Package notifier delivers account notifications. Every implementation
// satisfies accounts.Notifier and reports failures as delivery errors.
package notifier

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-accounts"
)

// Message is the envelope produced for every notification
type Message struct {
	To         string         `json:"to"`
	TemplateID string         `json:"templateId"`
	Subject    string         `json:"subject"`
	Variables  map[string]any `json:"variables"`
}

var subjects = map[string]string{
	accounts.ActivationTemplateID: accounts.ActivationSubject,
}

// Subject returns the subject line for a template
func Subject(templateID string) string {
	if s, ok := subjects[templateID]; ok {
		return s
	}
	return templateID
}

// NewMessage builds the envelope for a template
func NewMessage(to, templateID string, variables map[string]any) Message {
	return Message{
		To:         to,
		TemplateID: templateID,
		Subject:    Subject(templateID),
		Variables:  variables,
	}
}

// PlainText renders a plain text body for the message
func (m Message) PlainText() string {
	var b strings.Builder
	if name, ok := m.Variables["name"]; ok {
		fmt.Fprintf(&b, "Hello %v,\r\n\r\n", name)
	}

	switch m.TemplateID {
	case accounts.ActivationTemplateID:
		fmt.Fprintf(&b, "Your activation code is %v.\r\n", m.Variables["activationCode"])
		b.WriteString("It expires in 5 minutes.\r\n")
	default:
		for k, v := range m.Variables {
			if k == "name" {
				continue
			}
			fmt.Fprintf(&b, "%s: %v\r\n", k, v)
		}
	}
	return b.String()
}
