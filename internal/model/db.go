package model

// AllModels 按依赖顺序列出需要迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&ExternalMeeting{},
		&Meeting{},
		&SyncRun{},
		&Notification{},
	}
}
