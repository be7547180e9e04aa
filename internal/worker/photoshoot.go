package worker

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/webhook"
)

// Dispatcher posts a payload to a webhook. *webhook.Client satisfies it.
type Dispatcher interface {
	Post(ctx context.Context, url string, payload any) (map[string]any, error)
}

// RegisterPhotoshootJobs wires the photoshoot.generate handler.
func RegisterPhotoshootJobs(w *Worker, resolver *webhook.Resolver, dispatcher Dispatcher) {
	w.RegisterHandler(models.JobTypePhotoshoot, PhotoshootHandler(resolver, dispatcher))
	log.Printf("[worker] Registered job handler: %s", models.JobTypePhotoshoot)
}

// PhotoshootHandler sends a generation request to the card's webhook.
// Configuration problems and 4xx answers other than 429 are permanent.
func PhotoshootHandler(resolver *webhook.Resolver, dispatcher Dispatcher) Handler {
	return func(ctx context.Context, job *models.Job) (models.JSONB, error) {
		p, err := models.PhotoshootPayloadFromJSONB(job.Payload)
		if err != nil {
			return nil, Permanent(err)
		}

		url, err := resolver.Card(p.Card)
		if err != nil {
			return nil, Permanent(err)
		}

		out, err := dispatcher.Post(ctx, url, map[string]any{
			"jobId":           job.ID,
			"userId":          p.UserID,
			"card":            p.Card,
			"productImageUrl": p.ProductImageURL,
			"prompt":          p.Prompt,
			"kind":            p.Kind,
		})
		if err != nil {
			var se *webhook.StatusError
			if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
				return nil, Permanent(err)
			}
			return nil, err
		}
		return models.JSONB(out), nil
	}
}
