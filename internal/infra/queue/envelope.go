package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"chat-automation/internal/domain"
)

// decodeEnvelope разбирает входящее сообщение из тела записи очереди.
func decodeEnvelope(payload []byte) (domain.InboundEnvelope, error) {
	var env domain.InboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.InboundEnvelope{}, fmt.Errorf("decode inbound envelope: %w", err)
	}
	if env.SessionID == "" {
		return domain.InboundEnvelope{}, errors.New("decode inbound envelope: sessionId is empty")
	}
	return env, nil
}
