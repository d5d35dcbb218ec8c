//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietpage/proactive-engagement/pkg/journal"
	"github.com/quietpage/proactive-engagement/pkg/record"
)

// This is a manual integration test for the Redis stores
// Run this with: go run test_redis_integration.go
// Requires: Redis running on localhost:6379

func main() {
	logrus.SetLevel(logrus.DebugLevel)
	logrus.Infof("Starting Redis integration test...")

	ctx := context.Background()

	client, err := record.InitRedisClient(ctx, "localhost:6379", "", 30*time.Second)
	if err != nil {
		logrus.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer client.Close()

	testUserID := fmt.Sprintf("test-user-%d", time.Now().Unix())
	logrus.Infof("Testing with user ID: %s", testUserID)

	entries := journal.NewRedisStore(client)
	records := record.NewRedisStore(client, time.UTC, time.Hour)

	// Test 1: Seed a journal entry and read it back
	logrus.Infof("=== Test 1: Journal entry round trip ===")
	entry := journal.EntrySnapshot{
		ID:        fmt.Sprintf("entry-%d", time.Now().UnixNano()),
		UserID:    testUserID,
		Content:   "long day at work, another deadline moved up",
		MoodScore: 4, EnergyScore: 3, StressScore: 7,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := entries.AddEntry(ctx, entry); err != nil {
		logrus.Fatalf("AddEntry failed: %v", err)
	}
	got, err := entries.RecentEntries(ctx, testUserID, time.Now().Add(-24*time.Hour))
	if err != nil {
		logrus.Fatalf("RecentEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != entry.ID {
		logrus.Fatalf("entry round trip mismatch: %+v", got)
	}
	logrus.Infof("entry stored and read back")

	// Test 2: Active user listing
	logrus.Infof("=== Test 2: Active users ===")
	users, err := entries.ActiveUsers(ctx)
	if err != nil {
		logrus.Fatalf("ActiveUsers failed: %v", err)
	}
	foundUser := false
	for _, u := range users {
		if u == testUserID {
			foundUser = true
		}
	}
	if !foundUser {
		logrus.Fatalf("test user missing from active users: %v", users)
	}
	logrus.Infof("test user listed as active")

	// Test 3: Append an engagement record
	logrus.Infof("=== Test 3: Engagement record append ===")
	rec := record.Record{
		ID:           fmt.Sprintf("rec-%d", time.Now().UnixNano()),
		EntryID:      entry.ID,
		UserID:       testUserID,
		PersonaUsed:  "haven",
		ResponseText: "integration test response",
		Confidence:   0.9,
		TopicFlags:   map[string]interface{}{"proactive": true},
		CreatedAt:    time.Now(),
	}
	if err := records.Append(ctx, rec); err != nil {
		logrus.Fatalf("Append failed: %v", err)
	}
	logrus.Infof("record appended")

	// Test 4: Live counters
	logrus.Infof("=== Test 4: Live counters ===")
	count, err := records.CountToday(ctx, testUserID)
	if err != nil {
		logrus.Fatalf("CountToday failed: %v", err)
	}
	if count != 1 {
		logrus.Fatalf("CountToday = %d, expected 1", count)
	}
	last, err := records.LastTimestamp(ctx, testUserID)
	if err != nil {
		logrus.Fatalf("LastTimestamp failed: %v", err)
	}
	logrus.Infof("counters live: count=%d last=%v", count, last)

	// Test 5: Entry index lookup
	logrus.Infof("=== Test 5: Entry index ===")
	existing, err := records.Existing(ctx, testUserID, []string{entry.ID})
	if err != nil {
		logrus.Fatalf("Existing failed: %v", err)
	}
	if len(existing) != 1 || existing[0].PersonaUsed != "haven" {
		logrus.Fatalf("entry index mismatch: %+v", existing)
	}
	logrus.Infof("entry index resolves records")

	// Test 6: Recently engaged listing
	logrus.Infof("=== Test 6: Recently engaged users ===")
	recent, err := records.RecentlyEngagedUsers(ctx, time.Now().Add(-10*time.Minute), 10)
	if err != nil {
		logrus.Fatalf("RecentlyEngagedUsers failed: %v", err)
	}
	foundUser = false
	for _, u := range recent {
		if u == testUserID {
			foundUser = true
		}
	}
	if !foundUser {
		logrus.Fatalf("test user missing from recently engaged: %v", recent)
	}
	logrus.Infof("test user listed as recently engaged")

	// Test 7: Clean up via pruning
	logrus.Infof("=== Test 7: Prune ===")
	removed, err := records.PruneBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		logrus.Fatalf("PruneBefore failed: %v", err)
	}
	logrus.Infof("pruned %d records", removed)
	if _, err := records.LastTimestamp(ctx, testUserID); err == nil {
		logrus.Fatalf("records survived pruning")
	}
	client.Del(ctx, "quietpage:journal:entries:"+testUserID)

	logrus.Infof("All Redis integration tests passed")
}
