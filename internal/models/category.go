package models

import (
	"fmt"
	"strings"
)

// Category 是图片的展示用途，同时决定尺寸策略。取值是封闭的枚举。
type Category string

const (
	CategoryAlbum   Category = "album"
	CategoryGroom   Category = "groom"
	CategoryBride   Category = "bride"
	CategoryCouple  Category = "couple"
	CategoryQRGroom Category = "qr-groom"
	CategoryQRBride Category = "qr-bride"
	CategoryStory   Category = "story"
)

// Categories 按固定顺序列出所有合法分类。
var Categories = []Category{
	CategoryAlbum,
	CategoryGroom,
	CategoryBride,
	CategoryCouple,
	CategoryQRGroom,
	CategoryQRBride,
	CategoryStory,
}

// ParseCategory 把外部传入的字符串转换为 Category，未知取值返回错误。
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("无效的分类: %q", s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAlbum, CategoryGroom, CategoryBride, CategoryCouple,
		CategoryQRGroom, CategoryQRBride, CategoryStory:
		return true
	}
	return false
}

// IsSingleton 报告该分类在每个婚礼下是否最多只允许一张当前图片（收款二维码）。
func (c Category) IsSingleton() bool {
	return c == CategoryQRGroom || c == CategoryQRBride
}

func (c Category) String() string {
	return string(c)
}
