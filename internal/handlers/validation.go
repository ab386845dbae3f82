package handlers

import (
	"fmt"
	"strings"
)

func validateMatchID(matchID string) error {
	id := normalizeID(matchID)
	if id == "" || !strings.HasPrefix(id, "match_") {
		return fmt.Errorf("valid match_id required")
	}
	return nil
}

func validatePlayerID(playerID string) error {
	if normalizeID(playerID) == "" {
		return fmt.Errorf("player_id required")
	}
	return nil
}
