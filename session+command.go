package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Run starts the update loop that turns commands into registry operations.
func (session *Session) Run(registry *Registry) {
	go session.runLoop(registry)
}

func (session *Session) runLoop(registry *Registry) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 10

	updates, err := session.bot.GetUpdatesChan(u)
	if err != nil {
		logger.Errorf("update loop: %v", err)
		return
	}

	for update := range updates {
		message := update.Message
		if message == nil || !message.IsCommand() {
			continue
		}
		session.handleCommand(registry, message)
	}
}

func (session *Session) handleCommand(registry *Registry, message *tgbotapi.Message) {
	ownerId := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	var response string
	switch strings.ToLower(message.Command()) {
	case "start":
		response = "Greetings. Use /add Title | URL to subscribe to a feed, /rss to toggle polling."

	case "rss":
		response = session.handleToggle(registry.TogglePolling, ownerId, "Polling")
	case "feeds":
		response = session.handleToggle(registry.ToggleFeeds, ownerId, "Feed delivery")
	case "news":
		response = session.handleToggle(registry.ToggleNews, ownerId, "News headlines")

	case "add", "sub", "subscribe":
		response = session.handleAdd(registry, ownerId, args)
	case "list":
		response = session.handleList(registry, ownerId)
	case "del", "remove", "unsub", "unsubscribe":
		response = session.handleFeedByIndex(registry, ownerId, args, func(feedId string) (bool, string) {
			return registry.RemoveFeed(ownerId, feedId)
		})
	case "enable":
		response = session.handleFeedByIndex(registry, ownerId, args, func(feedId string) (bool, string) {
			return registry.SetFeedEnabled(ownerId, feedId, true)
		})
	case "disable":
		response = session.handleFeedByIndex(registry, ownerId, args, func(feedId string) (bool, string) {
			return registry.SetFeedEnabled(ownerId, feedId, false)
		})
	case "test":
		response = session.handleTest(registry, ownerId, args)
	case "stats":
		response = session.handleStats(registry, ownerId, args)

	case "addgroup":
		response = session.handleAddGroup(registry, ownerId, args)
	case "delgroup":
		response = session.handleDelGroup(registry, ownerId, args)
	case "groups":
		response = session.handleGroups(registry, ownerId)
	}

	if response != "" {
		session.SendText(ownerId, response)
	}
}

func (session *Session) handleToggle(toggle func(int64) (bool, error), ownerId int64, name string) string {
	enabled, err := toggle(ownerId)
	if err != nil {
		logger.Errorf("toggle for %d: %v", ownerId, err)
		return "Storage error, try again later."
	}
	if enabled {
		return name + " enabled."
	}
	return name + " disabled."
}

func (session *Session) handleAdd(registry *Registry, ownerId int64, args string) string {
	parts := strings.SplitN(args, "|", 2)
	if len(parts) != 2 {
		return "Invalid format. Use: /add Feed Title | Feed URL"
	}
	title := strings.TrimSpace(parts[0])
	url := strings.TrimSpace(parts[1])
	if title == "" || url == "" {
		return "Both title and URL are required."
	}
	_, reason := registry.RegisterFeed(context.Background(), ownerId, url, title)
	return reason
}

func (session *Session) handleList(registry *Registry, ownerId int64) string {
	feeds, err := registry.Feeds(ownerId)
	if err != nil {
		return "Storage error, try again later."
	}
	if len(feeds) == 0 {
		return "Your list is empty."
	}
	var b strings.Builder
	for idx, feed := range feeds {
		marker := " "
		if !feed.Enabled {
			marker = " (disabled) "
		}
		fmt.Fprintf(&b, "%d.%s%s\n", idx+1, marker, markdownLink(feed.Title, feed.URL))
	}
	return b.String()
}

func (session *Session) handleFeedByIndex(registry *Registry, ownerId int64, args string, op func(feedId string) (bool, string)) string {
	feed, reason := session.feedAtIndex(registry, ownerId, args)
	if feed == nil {
		return reason
	}
	_, reason = op(feed.Id)
	return reason
}

func (session *Session) handleTest(registry *Registry, ownerId int64, args string) string {
	feed, reason := session.feedAtIndex(registry, ownerId, args)
	if feed == nil {
		return reason
	}
	item, reason := registry.ForceCheck(context.Background(), ownerId, feed.Id)
	if item == nil {
		return reason
	}
	session.SendItem(ownerId, item, feed.Title)
	return ""
}

func (session *Session) handleStats(registry *Registry, ownerId int64, args string) string {
	feed, reason := session.feedAtIndex(registry, ownerId, args)
	if feed == nil {
		return reason
	}
	stats, err := registry.FeedStats(ownerId, feed.Id)
	if err != nil {
		return "Storage error, try again later."
	}
	return stats
}

func (session *Session) handleAddGroup(registry *Registry, ownerId int64, args string) string {
	groupId, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return "Invalid group ID. Example: /addgroup -1001234567890"
	}
	_, reason := registry.RegisterGroup(ownerId, groupId)
	return reason
}

func (session *Session) handleDelGroup(registry *Registry, ownerId int64, args string) string {
	groups, err := registry.Groups(ownerId)
	if err != nil {
		return "Storage error, try again later."
	}
	index, err := strconv.Atoi(args)
	if err != nil || index <= 0 || index > len(groups) {
		return "Invalid index. Use /groups to see the list."
	}
	_, reason := registry.RemoveGroup(ownerId, groups[index-1].Id)
	return reason
}

func (session *Session) handleGroups(registry *Registry, ownerId int64) string {
	groups, err := registry.Groups(ownerId)
	if err != nil {
		return "Storage error, try again later."
	}
	if len(groups) == 0 {
		return "No groups configured. Add the bot to a group, then use /addgroup <id>."
	}
	var b strings.Builder
	for idx, group := range groups {
		fmt.Fprintf(&b, "%d. %s (%d)\n", idx+1, group.Title, group.GroupId)
	}
	return b.String()
}

func (session *Session) feedAtIndex(registry *Registry, ownerId int64, args string) (*Feed, string) {
	feeds, err := registry.Feeds(ownerId)
	if err != nil {
		return nil, "Storage error, try again later."
	}
	index, err := strconv.Atoi(args)
	if err != nil || index <= 0 || index > len(feeds) {
		return nil, "Invalid index.\n\n" + session.handleList(registry, ownerId)
	}
	return feeds[index-1], ""
}
