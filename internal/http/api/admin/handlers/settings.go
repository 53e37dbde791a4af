package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/models"
	internalsettings "github.com/soldierhq/helpergate/internal/settings"
	"gorm.io/gorm"
)

// SettingHandler manages runtime settings values.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// List returns all settings sorted by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatSetting(&row))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var setting models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&setting).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatSetting(&setting))
}

// updateSettingRequest captures the payload for updating a setting.
type updateSettingRequest struct {
	Value json.RawMessage `json:"value"` // New JSON value.
}

// Update writes a known setting and refreshes the snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !internalsettings.IsKnownKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := internalsettings.ValidateValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if errUpsert := internalsettings.Upsert(c.Request.Context(), h.db, key, body.Value); errUpsert != nil {
		log.WithError(errUpsert).WithField("key", key).Error("admin: update setting failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a setting and refreshes the snapshot, so the configured
// default applies again.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if _, errReload := internalsettings.Reload(c.Request.Context(), h.db); errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatSetting formats a setting row into response JSON.
func (h *SettingHandler) formatSetting(s *models.Setting) gin.H {
	return gin.H{
		"key":        s.Key,
		"value":      json.RawMessage(s.Value),
		"updated_at": s.UpdatedAt,
	}
}
