package webhooks

import (
	"encoding/json"
	"net/http"

	"github.com/dkoroteev/genbot-backend/api/responses"
	"github.com/dkoroteev/genbot-backend/api/validators"
	"github.com/dkoroteev/genbot-backend/internal/requests"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

// GenerationCallback is the completion payload a generation provider posts
// back for one unit of work.
type GenerationCallback struct {
	ProviderID string          `json:"providerId" validate:"required"`
	Status     string          `json:"status" validate:"required,oneof=succeeded failed"`
	Result     string          `json:"result"`
	Details    json.RawMessage `json:"details"`
}

// GenerationComplete records a provider completion callback.
func GenerationComplete(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}

		var callback GenerationCallback
		if err := validators.DecodeJSONBody(r, &callback); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		err := svc.CompleteGeneration(ctx, requests.CompleteInput{
			ProviderID: callback.ProviderID,
			Result:     callback.Result,
			HasError:   callback.Status == "failed",
			Details:    callback.Details,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
