package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidOptions is returned when export options fail client-side validation
var ErrInvalidOptions = errors.New("invalid export options")

// ChatType is the kind of conversation a session belongs to
type ChatType string

const (
	ChatGroup  ChatType = "group"
	ChatFriend ChatType = "friend"
)

// ParseChatType parses "group" or "friend"
func ParseChatType(s string) (ChatType, error) {
	switch ChatType(strings.ToLower(s)) {
	case ChatGroup:
		return ChatGroup, nil
	case ChatFriend:
		return ChatFriend, nil
	}
	return "", fmt.Errorf("unknown chat type %q (expected group or friend)", s)
}

// ExportFormat is the output format requested from the remote exporter
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatTXT  ExportFormat = "txt"
	FormatHTML ExportFormat = "html"
)

// ParseExportFormat parses a format name, case-insensitively
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatTXT:
		return FormatTXT, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown export format %q (expected json, txt or html)", s)
}

// Session is a chat conversation that can be exported
type Session struct {
	ChatType ChatType `json:"chatType" yaml:"chat_type"`
	PeerUID  string   `json:"peerUid" yaml:"peer_uid"`
	Name     string   `json:"sessionName" yaml:"name"`
}

// Item returns the flat selection item for the session
func (s Session) Item() SelectionItem {
	return SelectionItem{
		ID:    string(s.ChatType) + ":" + s.PeerUID,
		Kind:  KindSession,
		Label: s.Name,
	}
}

// TimeRange selects between a full export and a custom window
type TimeRange string

const (
	RangeAll    TimeRange = "all"
	RangeCustom TimeRange = "custom"
)

// ExportOptions are the per-batch settings shared by every item
type ExportOptions struct {
	Format        ExportFormat
	Range         TimeRange
	StartTime     *time.Time
	EndTime       *time.Time
	DownloadMedia bool
}

// Validate checks the options before any submission is made
func (o ExportOptions) Validate() error {
	if _, err := ParseExportFormat(string(o.Format)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	switch o.Range {
	case "", RangeAll:
		return nil
	case RangeCustom:
		if o.StartTime == nil || o.EndTime == nil {
			return fmt.Errorf("%w: custom range requires start and end time", ErrInvalidOptions)
		}
		if o.StartTime.After(*o.EndTime) {
			return fmt.Errorf("%w: start time is after end time", ErrInvalidOptions)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown time range %q", ErrInvalidOptions, o.Range)
}

// ExportRequest is the payload of one export-creation call
type ExportRequest struct {
	ChatType      ChatType     `json:"chatType"`
	PeerUID       string       `json:"peerUid"`
	SessionName   string       `json:"sessionName"`
	Format        ExportFormat `json:"format"`
	StartTime     *int64       `json:"startTime,omitempty"`
	EndTime       *int64       `json:"endTime,omitempty"`
	DownloadMedia bool         `json:"downloadMedia"`
}

// NewExportRequest builds the request for one session from batch options
func NewExportRequest(s Session, opts ExportOptions) ExportRequest {
	req := ExportRequest{
		ChatType:      s.ChatType,
		PeerUID:       s.PeerUID,
		SessionName:   s.Name,
		Format:        opts.Format,
		DownloadMedia: opts.DownloadMedia,
	}
	if opts.Range == RangeCustom {
		if opts.StartTime != nil {
			v := opts.StartTime.Unix()
			req.StartTime = &v
		}
		if opts.EndTime != nil {
			v := opts.EndTime.Unix()
			req.EndTime = &v
		}
	}
	return req
}

// Validate checks a single request
func (r ExportRequest) Validate() error {
	if _, err := ParseChatType(string(r.ChatType)); err != nil {
		return err
	}
	if r.PeerUID == "" {
		return fmt.Errorf("peer uid is required")
	}
	if _, err := ParseExportFormat(string(r.Format)); err != nil {
		return err
	}
	if r.StartTime != nil && r.EndTime != nil && *r.StartTime > *r.EndTime {
		return fmt.Errorf("start time is after end time")
	}
	return nil
}
