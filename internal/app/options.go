package service

import "github.com/okian/sheetbridge/pkg/logger"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultSheetTitle sets the title of the first sheet created alongside a
// spreadsheet that has header values.
func WithDefaultSheetTitle(title string) Option {
	return func(s *Service) {
		if title != "" {
			s.defaultSheetTitle = title
		}
	}
}
