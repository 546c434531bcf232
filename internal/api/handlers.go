// 文件: internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mozillazg/go-unidecode"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/config"
	"thiepcuoi/internal/models"
	"thiepcuoi/internal/task"
	"thiepcuoi/pkg/database"
	"thiepcuoi/pkg/logger"
	"thiepcuoi/pkg/maintenance"
	"thiepcuoi/pkg/optimizer"
	"thiepcuoi/pkg/pipeline"
	"thiepcuoi/pkg/storage"
)

// 扩展名只是第一道过滤，流水线还会按文件头再校验一次
var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Deps 持有 API 层的所有依赖
type Deps struct {
	Config      *config.Config
	ConfigDir   string
	DB          database.Store
	Assets      storage.AssetStore
	Coordinator *pipeline.Coordinator
	Tasks       *task.Manager
	Maintenance maintenance.Maintenance
}

// APIHandlers 持有所有依赖
type APIHandlers struct {
	Deps
}

func NewAPIHandlers(deps Deps) *APIHandlers {
	return &APIHandlers{Deps: deps}
}

// --- 辅助函数 ---

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func parseObjectID(r *http.Request, param string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, param))
}

// --- 图片处理器 ---

// HandleUploadImage 接收 multipart 表单中的 image 字段，交给流水线入库。
func (h *APIHandlers) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	maxBytes := h.Config.MaxUploadBytes()

	// 多留 1MB 给表单其它字段和 multipart 边界
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "文件过大")
			return
		}
		respondError(w, http.StatusBadRequest, "无法解析表单: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		respondError(w, http.StatusBadRequest, "Only image files are allowed")
		return
	}

	weddingID, err := primitive.ObjectIDFromHex(r.FormValue("weddingId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的 weddingId")
		return
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = string(models.CategoryAlbum)
	}
	order, _ := strconv.Atoi(r.FormValue("order"))

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "读取上传文件失败: "+err.Error())
		return
	}
	if int64(len(data)) > maxBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "文件过大")
		return
	}

	name := optimizer.NewStoredName(ext)
	if err := h.Assets.WriteFile(name, data); err != nil {
		log.Error("保存上传文件失败", "error", err)
		respondError(w, http.StatusInternalServerError, "保存上传文件失败")
		return
	}

	log.Debug("收到上传", "category", category, "weddingId", weddingID.Hex(), "file", name)
	image, err := h.Coordinator.Ingest(r.Context(), pipeline.Upload{
		SourcePath:   h.Assets.Path(name),
		OriginalName: header.Filename,
		Category:     category,
		WeddingID:    weddingID,
		Order:        order,
	})
	if err != nil {
		h.Assets.DeleteFile(name)
		if errors.Is(err, pipeline.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error("上传失败", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, image)
}

func (h *APIHandlers) HandleListByWedding(w http.ResponseWriter, r *http.Request) {
	weddingID, err := parseObjectID(r, "weddingId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的 weddingId")
		return
	}
	images, err := h.DB.Images().ListByWedding(r.Context(), weddingID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	respondJSON(w, http.StatusOK, images)
}

func (h *APIHandlers) HandleListByCategory(w http.ResponseWriter, r *http.Request) {
	weddingID, err := parseObjectID(r, "weddingId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的 weddingId")
		return
	}
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	images, err := h.DB.Images().ListByWeddingAndCategory(r.Context(), weddingID, category)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	respondJSON(w, http.StatusOK, images)
}

// HandleUpdateImage 目前只允许修改显示顺序，文件字段只能由流水线修改。
func (h *APIHandlers) HandleUpdateImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseObjectID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的图片ID")
		return
	}
	var payload struct {
		Order *int `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	if payload.Order == nil {
		respondError(w, http.StatusBadRequest, "缺少 'order' 字段")
		return
	}
	image, err := h.DB.Images().UpdateOrder(r.Context(), id, *payload.Order)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	respondJSON(w, http.StatusOK, image)
}

// HandleDeleteImage 先删除描述符再删除文件，中途失败最多留下孤立文件。
func (h *APIHandlers) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseObjectID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的图片ID")
		return
	}
	image, err := h.DB.Images().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if err := h.DB.Images().Delete(r.Context(), id); err != nil && !errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if err := h.Assets.DeleteFile(image.FileName); err != nil {
		logger.FromContext(r.Context()).Warn("删除图片文件失败", "file", image.FileName, "error", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Image deleted"})
}

// HandleDownloadImage 以附件形式返回图片，文件名由原始文件名转写为 ASCII。
func (h *APIHandlers) HandleDownloadImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseObjectID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的图片ID")
		return
	}
	image, err := h.DB.Images().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	f, err := os.Open(h.Assets.Path(image.FileName))
	if err != nil {
		respondError(w, http.StatusNotFound, "图片文件不存在")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadName(image.OriginalName, image.FileName)))
	http.ServeContent(w, r, image.FileName, info.ModTime(), f)
}

// DownloadName 把原始文件名转写为安全的 ASCII 名称，扩展名取当前存储格式。
func DownloadName(originalName, storedName string) string {
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	var b strings.Builder
	for _, r := range unidecode.Unidecode(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "image"
	}
	return name + strings.ToLower(filepath.Ext(storedName))
}

// HandleSimilarImages 返回同一婚礼中感知哈希相同的其它图片，用于提示重复上传。
func (h *APIHandlers) HandleSimilarImages(w http.ResponseWriter, r *http.Request) {
	id, err := parseObjectID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "无效的图片ID")
		return
	}
	image, err := h.DB.Images().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	similar := []models.Image{}
	if image.PerceptualHash != "" {
		found, err := h.DB.Images().FindByPerceptualHash(r.Context(), image.WeddingID, image.PerceptualHash)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error")
			return
		}
		for _, img := range found {
			if img.ID != image.ID {
				similar = append(similar, img)
			}
		}
	}
	respondJSON(w, http.StatusOK, similar)
}

// --- 管理处理器 ---

func (h *APIHandlers) HandleStartOptimizeTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.Tasks.StartOptimizeTask()
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *APIHandlers) HandleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Tasks.GetTaskStatus(chi.URLParam(r, "taskId"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *APIHandlers) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.CancelTask(chi.URLParam(r, "taskId")); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"message": "cancelling"})
}

func (h *APIHandlers) HandleAudit(w http.ResponseWriter, r *http.Request) {
	images, err := h.DB.Images().GetAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "获取图片列表失败: "+err.Error())
		return
	}
	report, err := h.Maintenance.Audit(images, h.Assets)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "一致性检查失败: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// --- 配置处理器 ---

func (h *APIHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Config)
}

// HandleUpdateConfig 保存新的配置文件。大部分配置在重启后才生效。
func (h *APIHandlers) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		respondError(w, http.StatusBadRequest, "无效的配置格式: "+err.Error())
		return
	}
	if err := config.Save(h.ConfigDir, &newConfig); err != nil {
		respondError(w, http.StatusInternalServerError, "写入config.yaml文件失败: "+err.Error())
		return
	}
	slog.Info("配置文件已更新，重启后生效", "dir", h.ConfigDir)
	respondJSON(w, http.StatusOK, newConfig)
}
