package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EntitlementPolicy holds the posting limits that apply to users without
// an active membership.
type EntitlementPolicy struct {
	FreePostQuota      int `mapstructure:"free_post_quota"`
	FreeWindowDays     int `mapstructure:"free_window_days"`
	ListingDisplayDays int `mapstructure:"listing_display_days"`
}

func DefaultEntitlementPolicy() EntitlementPolicy {
	return EntitlementPolicy{
		FreePostQuota:      5,
		FreeWindowDays:     30,
		ListingDisplayDays: 60,
	}
}

// FreeWindow is the length of one rolling free-tier window.
func (p EntitlementPolicy) FreeWindow() time.Duration {
	return time.Duration(p.FreeWindowDays) * 24 * time.Hour
}

// DisplayWindow is how long a freshly created listing stays visible.
func (p EntitlementPolicy) DisplayWindow() time.Duration {
	return time.Duration(p.ListingDisplayDays) * 24 * time.Hour
}

type EntitlementPolicyHolder struct {
	current atomic.Value // holds EntitlementPolicy
}

func NewEntitlementPolicyHolder() (*EntitlementPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("entitlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/listingboost/config")
	v.AddConfigPath("/etc/listingboost")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LISTINGBOOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEntitlementPolicy()
	v.SetDefault("entitlement.free_post_quota", defaults.FreePostQuota)
	v.SetDefault("entitlement.free_window_days", defaults.FreeWindowDays)
	v.SetDefault("entitlement.listing_display_days", defaults.ListingDisplayDays)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy EntitlementPolicy
	if err := v.UnmarshalKey("entitlement", &policy); err != nil {
		return nil, err
	}
	if err := validateEntitlementPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticEntitlementPolicy(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EntitlementPolicy
		if err := v.UnmarshalKey("entitlement", &updated); err != nil {
			log.Printf("[entitlement-config] reload failed: %v", err)
			return
		}
		if err := validateEntitlementPolicy(updated); err != nil {
			log.Printf("[entitlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[entitlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticEntitlementPolicy returns a holder that never reloads.
func NewStaticEntitlementPolicy(policy EntitlementPolicy) *EntitlementPolicyHolder {
	holder := &EntitlementPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *EntitlementPolicyHolder) Get() EntitlementPolicy {
	if h == nil {
		return DefaultEntitlementPolicy()
	}
	return h.current.Load().(EntitlementPolicy)
}

func validateEntitlementPolicy(p EntitlementPolicy) error {
	if p.FreePostQuota < 0 {
		return errors.New("entitlement.free_post_quota cannot be negative")
	}
	if p.FreeWindowDays <= 0 {
		return errors.New("entitlement.free_window_days must be positive")
	}
	if p.ListingDisplayDays <= 0 {
		return errors.New("entitlement.listing_display_days must be positive")
	}
	return nil
}
