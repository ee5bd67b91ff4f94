package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"thingdrop/pkg/core"
	"thingdrop/pkg/meta"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

// 文本内容超过这个大小时不再内联渲染
const maxInlineText = 1 << 20

// Renderer 负责 HTML 页面和 Markdown
// goldmark 实例只创建一次，转换时每次调用都有独立状态，可以并发使用
// 默认不输出原始 HTML，用户上传的 Markdown 里的 <script> 会被丢弃
type Renderer struct {
	md    goldmark.Markdown
	index *template.Template
	perma *template.Template
}

func NewRenderer() (*Renderer, error) {
	index, err := template.ParseFS(templateFS, "templates/index.html", "templates/style.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}
	perma, err := template.ParseFS(templateFS, "templates/perma.html", "templates/style.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse perma template: %w", err)
	}
	return &Renderer{
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		index: index,
		perma: perma,
	}, nil
}

// Markdown 把 Markdown 源转换为安全的 HTML 片段
func (rd *Renderer) Markdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := rd.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// thingView 是画廊中一项的展示数据
type thingView struct {
	Kind core.Kind
	Src  string
	Link string
	Text template.HTML
}

func newThingView(item *meta.Item) thingView {
	name := item.ServableName()
	return thingView{
		Kind: item.Kind,
		Src:  "/f/" + name,
		Link: "/p/" + name,
	}
}

// Index 渲染画廊页
func (rd *Renderer) Index(w io.Writer, things []thingView) error {
	return rd.index.Execute(w, struct{ Things []thingView }{things})
}

// Perma 渲染单个文本条目的页面
func (rd *Renderer) Perma(w io.Writer, text template.HTML) error {
	return rd.perma.Execute(w, struct{ Text template.HTML }{text})
}
