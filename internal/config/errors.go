// Copyright (c) 2026 City Access Media

package config

import "errors"

var (
	// ErrMissingBrokerURL is returned when BROKER_URL is unset.
	ErrMissingBrokerURL = errors.New("config: BROKER_URL is required")
	// ErrMissingCitiesConfig is returned when CITIES_CONFIG is unset.
	ErrMissingCitiesConfig = errors.New("config: CITIES_CONFIG is required")
	// ErrInvalidCitiesConfig is returned when CITIES_CONFIG cannot be parsed.
	ErrInvalidCitiesConfig = errors.New("config: CITIES_CONFIG is not valid")
	// ErrDuplicateCityID is returned when the city roster contains a repeated id.
	ErrDuplicateCityID = errors.New("config: duplicate city id")

	errInvalidClock = errors.New("config: invalid HH:MM clock value")
)
