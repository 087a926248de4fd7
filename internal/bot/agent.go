package bot

import (
	"fmt"

	"domino/internal/domain"
)

// Agent is an autonomous occupant of a seat.
type Agent struct {
	ID       string
	Name     string
	Strategy Brain
}

// NewAgent builds an agent for a provisioned bot identity.
func NewAgent(botID string) (*Agent, error) {
	if !IsBot(botID) {
		return nil, fmt.Errorf("bot agent: %s is not a known bot identity", botID)
	}
	return &Agent{
		ID:       botID,
		Name:     GetBotDisplayName(botID),
		Strategy: &GreedyBrain{},
	}, nil
}

// Play asks the agent for its move at the given seat.
func (a *Agent) Play(game *domain.Game, seatIndex int) (Move, error) {
	move, err := a.Strategy.CalculateMove(game, seatIndex)
	if err != nil {
		return Move{Action: ActionPass}, err
	}
	return move, nil
}
