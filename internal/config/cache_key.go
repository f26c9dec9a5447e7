package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionOptionOrderKey returns the cache key for a session's shuffled option order
func (r *CacheKeyStruct) SessionOptionOrderKey(sessionID string) string {
	return fmt.Sprintf("session:%s:option_order", sessionID)
}

// FormMonitorChannel returns the Redis PubSub channel name for a form's live monitor
func (r *CacheKeyStruct) FormMonitorChannel(formID string) string {
	return fmt.Sprintf("form:%s:monitor", formID)
}

var CacheKey = NewCacheKeyStruct()
