package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/blueprint"
	"github.com/smilemakc/flowcore/internal/node"
)

const versionLockHeader = "X-Version-Lock"

// BlueprintHandlers implements spec.md §6's blueprint lifecycle:
// CreateBlueprint/GetBlueprint/PatchBlueprint/PutBlueprint/DeleteBlueprint.
type BlueprintHandlers struct {
	store *blueprint.Store
}

func NewBlueprintHandlers(store *blueprint.Store) *BlueprintHandlers {
	return &BlueprintHandlers{store: store}
}

// HandleCreate handles POST /blueprints/:id. The client must present
// X-Version-Lock: __new__.
func (h *BlueprintHandlers) HandleCreate(c *gin.Context) {
	id := c.Param("id")
	var bp node.Blueprint
	if err := c.ShouldBindJSON(&bp); err != nil {
		respondError(c, apperrors.New(apperrors.KindValidation, "blueprint.create", err))
		return
	}

	lock, err := h.store.Create(c.Request.Context(), id, c.GetHeader(versionLockHeader), &bp)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(versionLockHeader, lock)
	respondJSON(c, http.StatusCreated, gin.H{"id": id, "version_lock": lock})
}

// HandleGet handles GET /blueprints/:id.
func (h *BlueprintHandlers) HandleGet(c *gin.Context) {
	id := c.Param("id")
	bp, lock, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(versionLockHeader, lock)
	respondJSON(c, http.StatusOK, bp)
}

// HandlePut handles PUT /blueprints/:id, a full replace requiring a
// matching X-Version-Lock.
func (h *BlueprintHandlers) HandlePut(c *gin.Context) {
	id := c.Param("id")
	var bp node.Blueprint
	if err := c.ShouldBindJSON(&bp); err != nil {
		respondError(c, apperrors.New(apperrors.KindValidation, "blueprint.put", err))
		return
	}
	lock, err := h.store.Put(c.Request.Context(), id, c.GetHeader(versionLockHeader), &bp)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(versionLockHeader, lock)
	respondJSON(c, http.StatusOK, gin.H{"id": id, "version_lock": lock})
}

// HandleDelete handles DELETE /blueprints/:id, requiring a matching
// X-Version-Lock.
func (h *BlueprintHandlers) HandleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id, c.GetHeader(versionLockHeader)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// patchNodeEntry is one entry of a PatchBlueprint body's "nodes" array:
// either a full NodeSpec, or a {id, type: "__delete__"} removal sentinel.
type patchNodeEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// HandlePatch handles PATCH /blueprints/:id: {nodes: [NodeSpec |
// {id, type: "__delete__"}]}, requiring a matching X-Version-Lock.
func (h *BlueprintHandlers) HandlePatch(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperrors.New(apperrors.KindValidation, "blueprint.patch", err))
		return
	}

	patches := make([]blueprint.NodePatch, 0, len(body.Nodes))
	for _, raw := range body.Nodes {
		var sentinel patchNodeEntry
		if err := json.Unmarshal(raw, &sentinel); err != nil {
			respondError(c, apperrors.New(apperrors.KindValidation, "blueprint.patch", err))
			return
		}
		if sentinel.Type == "__delete__" {
			patches = append(patches, blueprint.NodePatch{ID: sentinel.ID, Remove: true})
			continue
		}
		var cfg node.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			respondError(c, apperrors.New(apperrors.KindValidation, "blueprint.patch", err))
			return
		}
		patches = append(patches, blueprint.NodePatch{ID: cfg.ID, Node: &cfg})
	}

	bp, lock, err := h.store.Patch(c.Request.Context(), id, c.GetHeader(versionLockHeader), patches)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(versionLockHeader, lock)
	respondJSON(c, http.StatusOK, bp)
}
