package risk

import (
	"encoding/json"

	"github.com/perpbot/goperp/internal/domain"
)

func marshalState(s *domain.RiskState) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
