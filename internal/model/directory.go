package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DirectoryAMeeting 目录 A（JSON 检索接口）的原始会议结构
type DirectoryAMeeting struct {
	ID               FlexString `json:"id"`                // 源内唯一ID（可能为数字）
	Name             string     `json:"name"`              // 会议名称
	Day              FlexInt    `json:"day"`               // 星期 0-6（0=周日）
	Time             string     `json:"time"`              // 本地开始时间 HH:MM[:SS]
	Location         string     `json:"location"`          // 场地名称
	FormattedAddress string     `json:"formatted_address"` // 完整地址
	Address          string     `json:"address"`           // 街道
	City             string     `json:"city"`
	State            string     `json:"state"`
	PostalCode       string     `json:"postal_code"`
	Country          string     `json:"country"`
	Latitude         *FlexFloat `json:"latitude"`
	Longitude        *FlexFloat `json:"longitude"`
	ConferenceURL    string     `json:"conference_url"` // 线上会议链接
	Attendance       string     `json:"attendance_option"`
	Notes            string     `json:"notes"`
	Formats          []string   `json:"formats"`
	ContactName      string     `json:"contact_name"`
	ContactPhone     string     `json:"contact_phone"`
	ContactEmail     string     `json:"contact_email"`
}

// FlexString 兼容字符串或数字编码
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FlexInt 兼容 "3" 与 3
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = -1
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// FlexFloat 兼容 "40.71" 与 40.71
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Ptr 转为 *float64
func (f *FlexFloat) Ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
