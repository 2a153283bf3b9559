package handlers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/models"
	"github.com/chemlab/labstock/internal/validation"
)

// RecipeHandler manages analysis recipes.
type RecipeHandler struct {
	DB *gorm.DB
}

func NewRecipeHandler(db *gorm.DB) *RecipeHandler { return &RecipeHandler{DB: db} }

// List: GET /recipes
func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	var recipes []models.Recipe
	if err := h.DB.Select("id", "name").Order("name").Find(&recipes).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_recipes", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": recipes, "total": len(recipes)})
}

// Detail: GET /recipes/detail?id=N
func (h *RecipeHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	var recipe models.Recipe
	if err := h.DB.First(&recipe, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_recipe", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, recipe)
}

// Create: POST /recipes
func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string              `json:"name"`
		Substances models.ComponentMap `json:"substances"`
		Solutions  models.ComponentMap `json:"solutions"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	validation.MaxLen("name", req.Name, 255, v)
	if len(req.Substances) == 0 && len(req.Solutions) == 0 {
		v["substances"] = "at_least_one_component_required"
	}
	for name, qty := range req.Substances {
		if qty.IsNegative() {
			v["substances."+name] = "must_not_be_negative"
		}
	}
	for name, qty := range req.Solutions {
		if qty.IsNegative() {
			v["solutions."+name] = "must_not_be_negative"
		}
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	var count int64
	h.DB.Model(&models.Recipe{}).Where("name = ?", req.Name).Count(&count)
	if count > 0 {
		httpx.JSONError(w, http.StatusConflict, "name_already_exists", req.Name)
		return
	}

	recipe := models.Recipe{Name: req.Name, Substances: req.Substances, Solutions: req.Solutions}
	if err := h.DB.Create(&recipe).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_recipe", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, recipe)
}

// Delete: POST /recipes/delete?id=N
func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	res := h.DB.Delete(&models.Recipe{}, id)
	if res.Error != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_delete_recipe", nil)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}
