package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/api/response"
	"github.com/pushgate/pushgate/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag admin endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	items := make([]models.FeatureFlag, 0, len(flags))
	for _, flag := range flags {
		items = append(items, models.FeatureFlag{
			Key:       flag.Key,
			Value:     flag.Value,
			UpdatedAt: models.Timestamp(flag.UpdatedAt),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	response.JSON(w, r, http.StatusOK, models.FeatureFlagList{Items: items})
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input models.FeatureFlagUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(input.Updates) == 0 {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "updates", Message: "at least one update is required", Code: "required"},
		})
		return
	}

	flags := make([]*featureflags.Flag, 0, len(input.Updates))
	for _, update := range input.Updates {
		if update.Key == "" {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "updates.key", Message: "key is required", Code: "required"},
			})
			return
		}
		flags = append(flags, &featureflags.Flag{Key: update.Key, Value: update.Value})
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
