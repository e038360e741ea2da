package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Movie age categories follow the national rating scale: the number is
// the minimum viewer age, 0 means unrestricted.
type Movie struct {
	bun.BaseModel `bun:"table:movies"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Title       string `bun:"title,notnull" json:"title"`
	AgeCategory int    `bun:"age_category,notnull,default:0" json:"age_category"`
	DurationMin int    `bun:"duration_min,notnull" json:"duration_min"`
}

type Cinema struct {
	bun.BaseModel `bun:"table:cinemas"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
	City string `bun:"city,notnull" json:"city"`
}

type Hall struct {
	bun.BaseModel `bun:"table:halls"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	CinemaID int64  `bun:"cinema_id,notnull" json:"cinema_id"`
	Name     string `bun:"name,notnull" json:"name"`
}

// Seat is a fixed physical position in a hall.
type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID     int64 `bun:"id,pk,autoincrement" json:"id"`
	HallID int64 `bun:"hall_id,notnull,unique:seats_hall_row_num" json:"hall_id"`
	Row    int   `bun:"row,notnull,unique:seats_hall_row_num" json:"row"`
	Num    int   `bun:"num,notnull,unique:seats_hall_row_num" json:"num"`
}

// Session is a screening of a movie in a hall. Price is per seat, in
// whole currency units.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID       int64     `bun:"id,pk,autoincrement" json:"id"`
	MovieID  int64     `bun:"movie_id,notnull" json:"movie_id"`
	HallID   int64     `bun:"hall_id,notnull" json:"hall_id"`
	StartsAt time.Time `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt   time.Time `bun:"ends_at,notnull" json:"ends_at"`
	Price    int64     `bun:"price,notnull" json:"price"`
	IsActive bool      `bun:"is_active,notnull,default:true" json:"is_active"`
}

// SeatStatus is one entry of the availability map for a session.
type SeatStatus struct {
	SeatID int64 `json:"seat_id"`
	Row    int   `json:"row"`
	Num    int   `json:"num"`
	Taken  bool  `json:"taken"`
}

// OrderEmailDetails carries everything the ticket email template needs.
type OrderEmailDetails struct {
	OrderID    string          `json:"order_id"`
	Email      string          `json:"email"`
	MovieTitle string          `json:"movie_title"`
	CinemaName string          `json:"cinema_name"`
	HallName   string          `json:"hall_name"`
	StartsAt   time.Time       `json:"starts_at"`
	Seats      []EmailSeatLine `json:"seats"`
}

// EmailSeatLine is one purchased seat in the email body.
type EmailSeatLine struct {
	TicketID string `bun:"ticket_id" json:"ticket_id"`
	Row      int    `bun:"row" json:"row"`
	Num      int    `bun:"num" json:"num"`
	Price    int64  `bun:"price" json:"price"`
}