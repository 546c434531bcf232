package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timestamps 嵌入到其他模型中，用于追踪创建和更新时间。
type Timestamps struct {
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Image 是一张已入库图片的描述符，对应 MongoDB images 集合中的一个文档。
// 描述符的生命周期由文档库管理；处理流水线只负责创建和更新文件相关字段。
type Image struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"_id"`

	// WeddingID 指向所属的婚礼，是图片分组的唯一依据。
	WeddingID primitive.ObjectID `bson:"weddingId" json:"weddingId"`

	// FileName 是上传目录中的当前文件名，扩展名即当前编码格式。
	FileName string `bson:"filename" json:"filename"`

	// OriginalName 是用户上传时的文件名，只作展示用途，不可修改。
	OriginalName string `bson:"originalName" json:"originalName"`

	// Path 是对外访问路径，例如 /uploads/1718000000000-3f2a9c1e.webp
	Path string `bson:"path" json:"path"`

	Category Category `bson:"category" json:"category"`
	Order    int      `bson:"order" json:"order"`

	FileSize int64 `bson:"fileSize" json:"fileSize"`
	Width    int   `bson:"width,omitempty" json:"width,omitempty"`
	Height   int   `bson:"height,omitempty" json:"height,omitempty"`

	// FileHash 是当前文件内容的 SHA-256。
	FileHash string `bson:"fileHash,omitempty" json:"fileHash,omitempty"`

	// PerceptualHash 用于在同一婚礼内查找视觉上重复的照片。
	PerceptualHash string `bson:"perceptualHash,omitempty" json:"perceptualHash,omitempty"`

	// Placeholder 是极小的 JPEG data URI，前端在大图加载完成前先显示它。
	Placeholder string `bson:"placeholder,omitempty" json:"placeholder,omitempty"`

	Timestamps `bson:",inline"`
}
