package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Intention is a customer's pending trip request waiting for a driver.
type Intention struct {
	CustomerID string    `json:"customer_id"`
	Start      Coord     `json:"start"`
	Dest       Coord     `json:"dest"`
	MID        string    `json:"mid"`
	ReadyAt    time.Time `json:"ready_at"`
	Attempts   int       `json:"attempts"` // unmatched attempts so far
}

func (i Intention) ReadyTime() time.Time { return i.ReadyAt }

// Retry returns a copy of the intention scheduled for readyAt. ReadyAt never
// moves backwards.
func (i Intention) Retry(readyAt time.Time) Intention {
	next := i
	next.Attempts++
	if readyAt.After(i.ReadyAt) {
		next.ReadyAt = readyAt
	}
	return next
}

type Status string

const (
	StatusOpened Status = "OPENED"
)

type CustomerSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

type DriverSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Plate  string `json:"plate"`
}

type Order struct {
	ID          string           `json:"id"`
	Customer    CustomerSnapshot `json:"customer"`
	Driver      DriverSnapshot   `json:"driver"`
	Status      Status           `json:"status"`
	OpenedAt    time.Time        `json:"opened_at"`
	Start       Coord            `json:"start"`
	Dest        Coord            `json:"dest"`
	IntentionID string           `json:"intention_id"`
}

type DriverPosition struct {
	DriverID  string         `json:"driver_id"`
	Loc       Coord          `json:"loc"`
	Driver    DriverSnapshot `json:"driver"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LocationReport is what driver apps send, over HTTP or the location topic.
type LocationReport struct {
	DriverID string `json:"driver_id"`
	Loc      Coord  `json:"loc"`
}
