package directoryb

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"MeetingSync/internal/model"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// meetingNamespace 生成确定性 external_id 的命名空间
var meetingNamespace = uuid.MustParse("6f1c2d8e-3b7a-5e44-9a61-0c5d7e2b9f13")

// 无 class 标注时的列顺序：时间、名称、场地、地址、类型、备注
var positionalColumns = []string{"time", "name", "location", "address", "types", "notes"}

var virtualHosts = []string{"zoom.us", "meet.google.com", "teams.microsoft.com", "webex.com", "gotomeeting.com"}

type row struct {
	id    string
	cells map[string]string
	links []string
}

// ParseSchedule 解析某一天的会议表格。每个含 <td> 的 <tr> 是一条会议，
// 可用 data-id 携带源内 ID，列可用 class 标注（time/name/location/address/types/notes/contact），
// 否则按列位置解析。
func ParseSchedule(r io.Reader, weekday int) ([]model.CanonicalMeeting, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var rows []row
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			if rw, ok := parseRow(n); ok {
				rows = append(rows, rw)
			}
			return false
		}
		return true
	})

	meetings := make([]model.CanonicalMeeting, 0, len(rows))
	for _, rw := range rows {
		meetings = append(meetings, rw.toCanonical(weekday))
	}
	return meetings, nil
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func parseRow(tr *html.Node) (row, bool) {
	rw := row{id: attr(tr, "data-id"), cells: map[string]string{}}
	pos := 0
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == atom.Th {
			return row{}, false
		}
		if c.DataAtom != atom.Td {
			continue
		}
		key := columnKey(attr(c, "class"))
		if key == "" && pos < len(positionalColumns) {
			key = positionalColumns[pos]
		}
		pos++
		if key != "" {
			rw.cells[key] = textOf(c)
		}
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.DataAtom == atom.A {
				if href := strings.TrimSpace(attr(n, "href")); href != "" {
					rw.links = append(rw.links, href)
				}
			}
			return true
		})
	}
	return rw, pos > 0
}

func columnKey(class string) string {
	for _, c := range strings.Fields(class) {
		switch c = strings.ToLower(c); c {
		case "time", "name", "location", "address", "types", "notes", "contact":
			return c
		}
	}
	return ""
}

func (rw row) toCanonical(weekday int) model.CanonicalMeeting {
	start := ParseClock(rw.cells["time"])
	name := rw.cells["name"]
	address := rw.cells["address"]

	types := splitTypes(rw.cells["types"])
	conference := conferenceLink(rw.links)
	virtual := conference != ""
	for _, t := range types {
		if t == "ONL" || t == "HY" || strings.EqualFold(t, "online") {
			virtual = true
		}
	}

	id := rw.id
	if id == "" {
		id = MeetingID(weekday, start, name, address)
	}
	return model.CanonicalMeeting{
		ExternalID: id,
		Name:       name,
		Weekday:    weekday,
		StartTime:  start,
		Location: model.Location{
			Name:             rw.cells["location"],
			FormattedAddress: address,
		},
		IsVirtual:     virtual,
		ConferenceURL: conference,
		Notes:         rw.cells["notes"],
		Formats:       types,
		ContactName:   rw.cells["contact"],
	}
}

// MeetingID 源未提供 ID 时由 星期+时间+名称+地址 派生的稳定 ID
func MeetingID(weekday int, start, name, address string) string {
	key := strings.Join([]string{
		strconv.Itoa(weekday),
		start,
		strings.ToLower(model.CollapseWhitespace(name)),
		strings.ToLower(model.CollapseWhitespace(address)),
	}, "|")
	return uuid.NewSHA1(meetingNamespace, []byte(key)).String()
}

// ParseClock 把 "7:00 pm" / "7pm" / "noon" / "19:00" 规范成 "HH:MM"；无法识别时原样返回交给校验
func ParseClock(s string) string {
	raw := strings.TrimSpace(s)
	v := strings.ToLower(strings.ReplaceAll(raw, ".", ""))
	v = strings.Join(strings.Fields(v), "")
	switch v {
	case "noon":
		return "12:00"
	case "midnight":
		return "00:00"
	}

	suffix := ""
	if strings.HasSuffix(v, "am") || strings.HasSuffix(v, "pm") {
		suffix = v[len(v)-2:]
		v = v[:len(v)-2]
	}
	hh, mm := v, "0"
	if i := strings.Index(v, ":"); i >= 0 {
		hh, mm = v[:i], v[i+1:]
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || m < 0 || m > 59 {
		return raw
	}
	switch suffix {
	case "am":
		if h < 1 || h > 12 {
			return raw
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return raw
		}
		if h != 12 {
			h += 12
		}
	}
	if h < 0 || h > 23 {
		return raw
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func splitTypes(s string) []string {
	var out []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func conferenceLink(links []string) string {
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		host := strings.ToLower(u.Hostname())
		for _, vh := range virtualHosts {
			if host == vh || strings.HasSuffix(host, "."+vh) {
				return l
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			b.WriteByte(' ')
		}
		return true
	})
	return model.CollapseWhitespace(b.String())
}
