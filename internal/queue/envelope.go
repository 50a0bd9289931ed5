package queue

import (
	"encoding/json"
	"errors"
)

// Envelope is the JSON body of an inbound message.
type Envelope struct {
	TxID  string `json:"tx_id"`
	Token string `json:"token"`
	// Reason is set on messages moved to the quarantine queue.
	Reason string `json:"reason,omitempty"`
}

// DecodeEnvelope parses body and requires a token.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	if env.Token == "" {
		return Envelope{}, errors.New("envelope has no token")
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
