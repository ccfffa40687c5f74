package action

import (
	"context"
	"strings"

	"github.com/nidhogg/ravenmoor/internal/memory"
)

// maxConsecutiveContinues caps self-continuation so the agent cannot talk
// to itself forever.
const maxConsecutiveContinues = 3

// NewContinueAction returns the self-continuation action: the agent elects
// to keep speaking without new user input. Validation counts the trailing
// run of continue-tagged agent responses in the room and rejects the
// fourth consecutive attempt regardless of content.
func NewContinueAction() *Action {
	return &Action{
		Name:              "CONTINUE",
		AlternateTriggers: []string{"ELABORATE", "KEEP_GOING"},
		Description:       "Continue the previous thought with another message.",
		Examples: []string{
			"And that is not the whole of it... (CONTINUE)",
		},
		Validate: validateContinue,
		Handler: func(_ context.Context, req *Request) (<-chan Response, error) {
			return Respond(Response{Text: req.Draft, Action: "CONTINUE"}), nil
		},
	}
}

func validateContinue(ctx context.Context, req *Request) bool {
	recent, err := req.Store.List(ctx, memory.TableConversation, req.RoomID, maxConsecutiveContinues+2, false)
	if err != nil {
		// Cannot prove the cap holds; refuse rather than risk a loop.
		return false
	}

	consecutive := 0
	for _, rec := range recent { // most recent first
		if rec.UserID != "" {
			break // a real user turn resets the run
		}
		if !strings.EqualFold(rec.Content.Metadata["action"], "CONTINUE") {
			break
		}
		consecutive++
	}
	return consecutive < maxConsecutiveContinues
}
