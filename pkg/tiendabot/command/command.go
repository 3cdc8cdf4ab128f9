// Package command classifies inbound text into store commands or free-form
// queries for the assistant.
//
// Two prefixes are recognized, case-insensitively:
//
//	guardar:<name>:<content>   save content under name
//	leer:<name>                read the content saved under name
//
// Anything else is a query forwarded to the completion service.
package command

import "strings"

const (
	savePrefix = "guardar:"
	readPrefix = "leer:"
)

// Command is one of Save, Read or Query.
type Command interface {
	command()
}

// Save stores Content under Name.
type Save struct {
	Name    string
	Content string
}

// Read retrieves the content stored under Name.
type Read struct {
	Name string
}

// Query is free-form text for the completion service.
type Query struct {
	Text string
}

func (Save) command()  {}
func (Read) command()  {}
func (Query) command() {}

// Parse classifies body. It never fails: empty names or contents are returned
// as-is and left for the store to accept or reject.
func Parse(body string) Command {
	lower := strings.ToLower(body)

	switch {
	case strings.HasPrefix(lower, savePrefix):
		// Only the first two delimiters are significant; content may contain ':'.
		parts := strings.SplitN(body, ":", 3)
		save := Save{Name: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			save.Content = strings.TrimSpace(parts[2])
		}
		return save

	case strings.HasPrefix(lower, readPrefix):
		return Read{Name: strings.TrimSpace(body[len(readPrefix):])}
	}

	return Query{Text: body}
}
