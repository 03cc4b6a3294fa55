package reporting

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwalsh/galley/internal/domain"
	"github.com/dwalsh/galley/internal/repository"
)

// Handler exposes read-only listing and detail endpoints over the
// orchestration core. All endpoints delegate to the repository listing
// operations; an empty result is a valid empty list, never an error.
type Handler struct {
	errors      repository.ErrorRepository
	logs        repository.LogRepository
	recipeTypes repository.RecipeTypeRepository
	recipes     repository.RecipeRepository
}

// NewHandler builds the reporting handler over the given repositories.
func NewHandler(
	errorRepo repository.ErrorRepository,
	logRepo repository.LogRepository,
	recipeTypeRepo repository.RecipeTypeRepository,
	recipeRepo repository.RecipeRepository,
) *Handler {
	return &Handler{
		errors:      errorRepo,
		logs:        logRepo,
		recipeTypes: recipeTypeRepo,
		recipes:     recipeRepo,
	}
}

// Mux routes the reporting endpoints.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /errors", h.listErrors)
	mux.HandleFunc("GET /logs", h.listLogs)
	mux.HandleFunc("GET /recipe-types", h.listRecipeTypes)
	mux.HandleFunc("GET /recipe-types/{id}", h.recipeTypeDetails)
	mux.HandleFunc("GET /recipes", h.listRecipes)
	mux.HandleFunc("GET /recipes/{id}", h.recipeDetails)
	mux.HandleFunc("GET /reports/errors.xlsx", h.exportErrors)
	mux.HandleFunc("GET /reports/recipes.xlsx", h.exportRecipes)
	return LoggingMiddleware(mux)
}

func (h *Handler) listErrors(w http.ResponseWriter, r *http.Request) {
	started, ended, order, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.errors.List(r.Context(), domain.ErrorFilter{Started: started, Ended: ended, Order: order})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	started, ended, _, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := domain.LogFilter{Started: started, Ended: ended}
	if levels := r.URL.Query().Get("levels"); levels != "" {
		filter.Levels = strings.Split(levels, ",")
	}

	result, err := h.logs.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listRecipeTypes(w http.ResponseWriter, r *http.Request) {
	started, ended, order, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.recipeTypes.List(r.Context(), domain.RecipeTypeFilter{Started: started, Ended: ended, Order: order})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) recipeTypeDetails(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid recipe type id", http.StatusBadRequest)
		return
	}

	details, err := h.recipeTypes.GetDetails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, details)
}

func (h *Handler) listRecipes(w http.ResponseWriter, r *http.Request) {
	started, ended, order, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter := domain.RecipeFilter{Started: started, Ended: ended, Order: order}
	if names := r.URL.Query().Get("type_names"); names != "" {
		filter.TypeNames = strings.Split(names, ",")
	}
	if ids := r.URL.Query().Get("type_ids"); ids != "" {
		for _, raw := range strings.Split(ids, ",") {
			id, parseErr := uuid.Parse(strings.TrimSpace(raw))
			if parseErr != nil {
				http.Error(w, "invalid type id: "+raw, http.StatusBadRequest)
				return
			}
			filter.TypeIDs = append(filter.TypeIDs, id)
		}
	}

	result, err := h.recipes.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) recipeDetails(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid recipe id", http.StatusBadRequest)
		return
	}

	details, err := h.recipes.GetDetails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, details)
}

func (h *Handler) exportErrors(w http.ResponseWriter, r *http.Request) {
	started, ended, order, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.errors.List(r.Context(), domain.ErrorFilter{Started: started, Ended: ended, Order: order})
	if err != nil {
		writeError(w, err)
		return
	}

	workbook, err := BuildErrorsWorkbook(result)
	if err != nil {
		writeError(w, err)
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="errors.xlsx"`)
	if err := workbook.Write(w); err != nil {
		writeError(w, err)
	}
}

func (h *Handler) exportRecipes(w http.ResponseWriter, r *http.Request) {
	started, ended, order, err := timeRangeParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.recipes.List(r.Context(), domain.RecipeFilter{Started: started, Ended: ended, Order: order})
	if err != nil {
		writeError(w, err)
		return
	}

	workbook, err := BuildRecipesWorkbook(result)
	if err != nil {
		writeError(w, err)
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="recipes.xlsx"`)
	if err := workbook.Write(w); err != nil {
		writeError(w, err)
	}
}

// timeRangeParams parses the shared started/ended/order query parameters.
// Bounds are RFC 3339 and inclusive.
func timeRangeParams(r *http.Request) (started, ended *time.Time, order []string, err error) {
	query := r.URL.Query()
	if raw := query.Get("started"); raw != "" {
		t, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return nil, nil, nil, errors.New("invalid started timestamp, expected RFC 3339")
		}
		started = &t
	}
	if raw := query.Get("ended"); raw != "" {
		t, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return nil, nil, nil, errors.New("invalid ended timestamp, expected RFC 3339")
		}
		ended = &t
	}
	if raw := query.Get("order"); raw != "" {
		order = strings.Split(raw, ",")
	}
	return started, ended, order, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeError maps domain faults onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		http.Error(w, notFound.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
