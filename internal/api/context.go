package api

import (
	"context"
	"net/http"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
)

func contextWithParticipant(ctx context.Context, p models.Participant) context.Context {
	return context.WithValue(ctx, participantKey, p)
}

// participantFrom returns the authenticated participant placed in the
// context by RequireAuth. Handlers behind RequireAuth may rely on it
// being present.
func participantFrom(r *http.Request) models.Participant {
	p, _ := r.Context().Value(participantKey).(models.Participant)
	return p
}
