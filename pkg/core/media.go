package core

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"thingdrop/pkg/types"
)

var ErrUnknownMime = errors.New("no mime type for file")

// Kind 是 MIME 主类型的归类, 决定展示方式和是否需要转码
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindText  Kind = "text"
	KindOther Kind = "other"
)

// 常见扩展名的固定映射, 不依赖宿主机的 mime.types
var extMime = map[types.Ext]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"avif": "image/avif",
	"heic": "image/heic",
	"bmp":  "image/bmp",
	"ico":  "image/vnd.microsoft.icon",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"opus": "audio/opus",
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"ogv":  "video/ogg",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"csv":  "text/csv",
	"html": "text/html",
	"css":  "text/css",
	"json": "application/json",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
}

// ExtOf 返回文件名的规范化扩展名
func ExtOf(filename string) types.Ext {
	return types.NormalizeExt(filepath.Ext(filename))
}

// DetectMime 根据文件名的扩展名推断 MIME 类型
// 先查固定表, 再回退到标准库; 都没有时返回 ErrUnknownMime
func DetectMime(filename string) (string, error) {
	ext := ExtOf(filename)
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnknownMime, filename)
	}
	if m, ok := extMime[ext]; ok {
		return m, nil
	}
	if m := mime.TypeByExtension("." + ext.String()); m != "" {
		// 去掉 "; charset=utf-8" 之类的参数
		if mediaType, _, err := mime.ParseMediaType(m); err == nil {
			return mediaType, nil
		}
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMime, filename)
}

// KindOf 把 MIME 类型归类
func KindOf(mimeType string) Kind {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image":
		return KindImage
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	case "text":
		return KindText
	default:
		return KindOther
	}
}

// Target 描述转码目标格式
type Target struct {
	Ext types.Ext
}

// TargetFor 判断给定类型的内容是否需要规范化
// 视频统一为 mp4, 音频统一为 mp3, 其它保持原样
func TargetFor(kind Kind, ext types.Ext) (Target, bool) {
	switch {
	case kind == KindVideo && ext != "mp4":
		return Target{Ext: "mp4"}, true
	case kind == KindAudio && ext != "mp3":
		return Target{Ext: "mp3"}, true
	}
	return Target{}, false
}

// ContentType 返回存储名对应的 Content-Type, 用于回传文件
func ContentType(name string) string {
	if m, err := DetectMime(name); err == nil {
		if KindOf(m) == KindText && !strings.Contains(m, "charset") {
			return m + "; charset=utf-8"
		}
		return m
	}
	return "application/octet-stream"
}
