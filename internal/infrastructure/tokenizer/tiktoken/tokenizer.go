// Package tiktoken adapts the tiktoken BPE encodings to the Tokenizer port.
package tiktoken

import (
	"fmt"

	tiktokengo "github.com/pkoukk/tiktoken-go"
)

type Tokenizer struct {
	encoding *tiktokengo.Tiktoken
}

func New(encodingName string) (*Tokenizer, error) {
	encoding, err := tiktokengo.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encodingName, err)
	}
	return &Tokenizer{encoding: encoding}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

func (t *Tokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}
