package database

import (
	"context"
	"fmt"

	"anonedits/internal/domain"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

type OrganizationCount struct {
	Organization string `json:"organization"`
	Count        int64  `json:"count"`
}

func RecordNotification(ctx context.Context, n *domain.Notification) error {
	if DB == nil {
		return ErrNotConfigured
	}
	if n == nil {
		return fmt.Errorf("database: nil notification")
	}
	if err := DB.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("database: record notification: %w", err)
	}
	return nil
}

// ListRecentNotifications returns the newest notifications first. A limit
// outside 1..500 falls back to the default of 50 or is capped.
func ListRecentNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if DB == nil {
		return nil, ErrNotConfigured
	}

	switch {
	case limit <= 0:
		limit = defaultNotificationLimit
	case limit > maxNotificationLimit:
		limit = maxNotificationLimit
	}

	var notifications []domain.Notification
	err := DB.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("database: list notifications: %w", err)
	}
	return notifications, nil
}

// CountNotificationsByOrganization counts published notifications per
// attributed organization, busiest first. Whitelist notifications carry no
// organization and are not counted.
func CountNotificationsByOrganization(ctx context.Context) ([]OrganizationCount, error) {
	if DB == nil {
		return nil, ErrNotConfigured
	}

	var counts []OrganizationCount
	err := DB.WithContext(ctx).
		Model(&domain.Notification{}).
		Select("organization, COUNT(*) AS count").
		Where("published = ? AND organization <> ''", true).
		Group("organization").
		Order("count DESC").
		Order("organization ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("database: count notifications: %w", err)
	}
	return counts, nil
}
