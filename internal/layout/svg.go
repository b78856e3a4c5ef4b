package layout

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

type svgDoc struct {
	XMLName xml.Name `xml:"svg"`
	NS      string   `xml:"xmlns,attr"`
	Width   string   `xml:"width,attr"`
	Height  string   `xml:"height,attr"`
	Class   string   `xml:"class,attr"`
	Root    svgGroup `xml:"g"`
}

type svgGroup struct {
	Class     string     `xml:"class,attr,omitempty"`
	Transform string     `xml:"transform,attr,omitempty"`
	Title     string     `xml:"title,omitempty"`
	Circle    *svgCircle `xml:"circle,omitempty"`
	Texts     []svgText  `xml:"text"`
	Groups    []svgGroup `xml:"g"`
}

type svgCircle struct {
	R     string `xml:"r,attr"`
	Fill  string `xml:"fill,attr"`
	Class string `xml:"class,attr"`
}

type svgText struct {
	Anchor   string `xml:"text-anchor,attr"`
	Baseline string `xml:"dominant-baseline,attr,omitempty"`
	Y        string `xml:"y,attr,omitempty"`
	Style    string `xml:"style,attr"`
	Value    string `xml:",chardata"`
}

func num(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// WriteSVG renders a static snapshot of the cloud.
func WriteSVG(w io.Writer, l Layout) error {
	doc := svgDoc{
		NS:     "http://www.w3.org/2000/svg",
		Width:  num(l.Viewport.Width),
		Height: num(l.Viewport.Height),
		Class:  "word-cloud-svg",
		Root: svgGroup{
			Transform: fmt.Sprintf("translate(%s, %s)", num(l.Viewport.Width/2), num(l.Viewport.Height/2)),
		},
	}
	for _, b := range l.Bubbles {
		g := svgGroup{
			Class:     "bubble-group",
			Transform: fmt.Sprintf("translate(%s,%s)", num(b.X), num(b.Y)),
			Title:     fmt.Sprintf("%s (%d)", b.Theme, b.Count),
			Circle:    &svgCircle{R: num(b.Radius), Fill: b.Color, Class: "word-bubble"},
		}
		style := fmt.Sprintf("font-size:%spx;font-family:Impact,sans-serif;fill:black", num(b.LineSize))
		if !b.MultiWord() {
			g.Texts = []svgText{{Anchor: "middle", Baseline: "middle", Style: style, Value: b.Lines[0]}}
		} else {
			lineHeight := b.LineSize * 1.1
			startY := -float64(len(b.Lines)-1) * lineHeight / 2
			for i, word := range b.Lines {
				g.Texts = append(g.Texts, svgText{
					Anchor: "middle",
					Y:      num(startY + float64(i)*lineHeight),
					Style:  style,
					Value:  word,
				})
			}
		}
		doc.Root.Groups = append(doc.Root.Groups, g)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write svg header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode svg")
	}
	return errors.Wrap(enc.Flush(), "flush svg")
}
