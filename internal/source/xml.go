package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/momo-tracker/internal/domain"
)

// smsElement is one <sms> entry of an SMS backup export. Only the
// attributes the importer reads are mapped.
type smsElement struct {
	Address string `xml:"address,attr"`
	Body    string `xml:"body,attr"`
}

// DecodeMessages returns every <sms> element in document order, wherever it
// appears in the tree.
func DecodeMessages(r io.Reader) ([]domain.RawMessage, error) {
	dec := xml.NewDecoder(r)

	var messages []domain.RawMessage
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DecodeMessages: reading token: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true
		if start.Name.Local != "sms" {
			continue
		}

		var el smsElement
		if err := dec.DecodeElement(&el, &start); err != nil {
			return nil, fmt.Errorf("DecodeMessages: decoding sms element: %w", err)
		}
		messages = append(messages, domain.RawMessage{
			SenderAddress: el.Address,
			Body:          el.Body,
		})
	}

	if !sawElement {
		return nil, errors.New("DecodeMessages: document has no elements")
	}

	return messages, nil
}

// DecodeBytes is DecodeMessages over an in-memory document.
func DecodeBytes(data []byte) ([]domain.RawMessage, error) {
	return DecodeMessages(bytes.NewReader(data))
}
