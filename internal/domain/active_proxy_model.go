package domain

import (
	"strconv"
	"time"
)

const ActiveYes = "Yes"

// SheetHeader is the header row every sink publishes above the records.
var SheetHeader = []string{
	"Host",
	"Port",
	"Username",
	"Password",
	"Country",
	"Region",
	"City",
	"ISP",
	"Org",
	"Active",
	"LastChecked",
}

// ActiveProxyRecord is one published row: a reachable proxy plus its geo metadata.
type ActiveProxyRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Host        string    `gorm:"not null;index:idx_active_proxy_addr,priority:1" json:"host"`
	Port        uint16    `gorm:"not null;index:idx_active_proxy_addr,priority:2" json:"port"`
	Username    string    `gorm:"default:''" json:"username"`
	Password    string    `gorm:"default:''" json:"password"`
	Country     string    `gorm:"size:64" json:"country"`
	Region      string    `gorm:"size:128" json:"region"`
	City        string    `gorm:"size:128" json:"city"`
	ISP         string    `gorm:"column:isp" json:"isp"`
	Org         string    `json:"org"`
	Active      string    `gorm:"size:8" json:"active"`
	LastChecked time.Time `gorm:"index" json:"last_checked"`
}

func (ActiveProxyRecord) TableName() string {
	return "active_proxies"
}

func NewActiveProxyRecord(proxy Proxy, geo GeoMetadata, checkedAt time.Time) ActiveProxyRecord {
	geo = geo.Normalize()
	return ActiveProxyRecord{
		Host:        proxy.Host,
		Port:        proxy.Port,
		Username:    proxy.Username(),
		Password:    proxy.Password(),
		Country:     geo.Country,
		Region:      geo.Region,
		City:        geo.City,
		ISP:         geo.ISP,
		Org:         geo.Org,
		Active:      ActiveYes,
		LastChecked: checkedAt.UTC(),
	}
}

func (record ActiveProxyRecord) Geo() GeoMetadata {
	return GeoMetadata{
		Country: record.Country,
		Region:  record.Region,
		City:    record.City,
		ISP:     record.ISP,
		Org:     record.Org,
	}
}

// Row renders the record in SheetHeader order.
func (record ActiveProxyRecord) Row() []string {
	return []string{
		record.Host,
		strconv.Itoa(int(record.Port)),
		record.Username,
		record.Password,
		record.Country,
		record.Region,
		record.City,
		record.ISP,
		record.Org,
		record.Active,
		record.LastChecked.UTC().Format(time.RFC3339),
	}
}
