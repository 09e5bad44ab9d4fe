package adapter

import (
	"regexp"

	"MeetingSync/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// NewRecordValidator 规范记录校验器（注册 timeofday 规则）
func NewRecordValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		return timeOfDayPattern.MatchString(fl.Field().String())
	})
	return v
}

// FilterValid 丢弃校验不通过的记录，返回有效记录与跳过数
func FilterValid(v *validator.Validate, source model.Source, records []model.CanonicalMeeting, logger *logrus.Logger) ([]model.CanonicalMeeting, int) {
	valid := make([]model.CanonicalMeeting, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if err := v.Struct(rec); err != nil {
			skipped++
			logger.WithError(err).WithFields(logrus.Fields{
				"source":      source,
				"external_id": rec.ExternalID,
			}).Warn("会议记录校验失败，跳过")
			continue
		}
		valid = append(valid, rec)
	}
	return valid, skipped
}
