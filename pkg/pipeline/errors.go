package pipeline

import "errors"

var (
	// ErrInvalidInput 表示分类未知、缺少婚礼ID或源文件不是受支持的图片。
	// 在产生任何副作用之前返回，不应重试。
	ErrInvalidInput = errors.New("无效的输入")

	// ErrStorage 表示上传目录或描述符库的读写失败。
	ErrStorage = errors.New("存储失败")

	// ErrMissingAsset 表示描述符引用的文件在上传目录中不存在。
	ErrMissingAsset = errors.New("资源文件不存在")
)
