package main

// Source adapter blank imports. Each import activates a self-registering
// adapter; add new sources here as they are implemented.

import (
	_ "github.com/Strob0t/TriggerGate/internal/adapter/discord"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/github"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/gitlab"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/jira"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/linear"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/pagerduty"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/slack"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/telegram"
	_ "github.com/Strob0t/TriggerGate/internal/adapter/webhook"
)
