package optimizer

import "thiepcuoi/internal/models"

// BoundingBox 返回分类对应的最大宽高（像素）。宽高都是上限，保持比例且不放大。
// 未知分类必须在入口校验时拒绝，这里只保证 album 的默认值。
func BoundingBox(c models.Category) (maxWidth, maxHeight int) {
	switch c {
	case models.CategoryQRGroom, models.CategoryQRBride:
		return 800, 800
	case models.CategoryGroom, models.CategoryBride, models.CategoryCouple:
		return 1200, 1200
	case models.CategoryStory:
		return 1600, 1600
	default:
		return 1920, 1920
	}
}
