package models

import (
	"fmt"
	"strings"
	"time"
)

// ImageEditRequest is the payload of POST /api/image-edit.
type ImageEditRequest struct {
	Prompt   string `json:"prompt" validate:"notblank"`
	ImageURL string `json:"image_url" validate:"required,httpurl"`
}

// UploadKind is the media family accepted by an upload route.
type UploadKind string

const (
	UploadImage UploadKind = "image"
	UploadAudio UploadKind = "audio"
)

// Upload is a stored media file.
type Upload struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"userId"`
	Kind        UploadKind `json:"kind"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"contentType"`
	SizeBytes   int64      `json:"size"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// JobTypePhotoshoot is the queue job type for generation requests.
const JobTypePhotoshoot = "photoshoot.generate"

// PhotoshootRequest is the payload of POST /api/photoshoots.
type PhotoshootRequest struct {
	Card            int    `json:"card" validate:"gte=1,lte=20"`
	ProductImageURL string `json:"productImageUrl" validate:"required,httpurl"`
	Prompt          string `json:"prompt" validate:"max=2000"`
	Kind            string `json:"kind" validate:"omitempty,oneof=image video scene"`
}

// PhotoshootPayload is what a photoshoot job carries through the queue.
type PhotoshootPayload struct {
	UserID          int64
	Card            int
	ProductImageURL string
	Prompt          string
	Kind            string
	Cost            int
}

// ToJSONB encodes the payload for the jobs table.
func (p PhotoshootPayload) ToJSONB() JSONB {
	return JSONB{
		"user_id":           p.UserID,
		"card":              p.Card,
		"product_image_url": p.ProductImageURL,
		"prompt":            p.Prompt,
		"kind":              p.Kind,
		"cost":              p.Cost,
	}
}

// PhotoshootPayloadFromJSONB decodes a job payload. Numbers arrive as
// float64 after a JSON round trip.
func PhotoshootPayloadFromJSONB(j JSONB) (PhotoshootPayload, error) {
	var p PhotoshootPayload
	userID, ok := number(j["user_id"])
	if !ok || userID <= 0 {
		return p, fmt.Errorf("payload: missing user_id")
	}
	p.UserID = int64(userID)

	card, _ := number(j["card"])
	p.Card = int(card)
	cost, _ := number(j["cost"])
	p.Cost = int(cost)

	p.ProductImageURL, _ = j["product_image_url"].(string)
	p.Prompt, _ = j["prompt"].(string)
	p.Kind, _ = j["kind"].(string)
	if strings.TrimSpace(p.ProductImageURL) == "" {
		return p, fmt.Errorf("payload: missing product_image_url")
	}
	if p.Kind == "" {
		p.Kind = "image"
	}
	return p, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
