package config

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var adminUsers map[string]struct{}

func loadAdminUsers() {
	adminUsers = make(map[string]struct{})
	for _, user := range GetConfig().AdminUsers {
		user = strings.TrimSpace(user)
		if user == "" || strings.ContainsAny(user, " :") {
			logrus.Fatalf("admin_users value %q has invalid format", user)
		}
		adminUsers[user] = struct{}{}
	}
}

// IsAdminUser reports whether user is a platform administrator. Platform
// administrators pass the access gate without admin verification.
func IsAdminUser(user string) bool {
	_, present := adminUsers[user]
	return present
}
