package models

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// PriceTick is one raw price record as read from a source file or the
// price_ticks table. Timestamp is the original instant (UTC), possibly with
// sub-minute precision.
type PriceTick struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	Timestamp time.Time  `gorm:"column:tick_time;not null" json:"t"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Close     float64    `json:"close"`
	PctChange null.Float `json:"pct_change"` // percent units, as supplied by the source
	Source    string     `gorm:"size:255" json:"source"`
	CreatedAt time.Time  `json:"-"`
}

// PriceBar is the single surviving bar of one UTC minute.
type PriceBar struct {
	Minute time.Time `json:"minute"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
}

// Label classifies the price move after an event.
type Label string

const (
	LabelUp      Label = "up"
	LabelDown    Label = "down"
	LabelNeutral Label = "neutral"
)

// ParseLabel accepts up/down/neutral in any case.
func ParseLabel(s string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelUp:
		return LabelUp, true
	case LabelDown:
		return LabelDown, true
	case LabelNeutral:
		return LabelNeutral, true
	}
	return "", false
}

// Event is a social-media post. ImpactPct and Label are filled once by the
// startup labeling pass and never change afterwards.
type Event struct {
	ID        string     `gorm:"primaryKey;size:64" json:"tweet_id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime:false" json:"created_at"`
	IsReply   bool       `json:"isReply"`
	IsRetweet bool       `json:"isRetweet"`
	IsQuote   bool       `json:"isQuote"`
	ImpactPct null.Float `gorm:"-" json:"impact_pct"`
	Label     Label      `gorm:"-" json:"label"`
}
