package models

import "time"

// SeriesPoint 时序查询结果中的一个点
type SeriesPoint struct {
	Time  time.Time   `json:"time"`
	Value interface{} `json:"value"`
}
