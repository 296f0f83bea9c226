package model

// City groups points for routing menus.
type City struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Point is a retail location that sends or receives moves.
type Point struct {
	ID     int64  `json:"id"`
	CityID int64  `json:"city_id"`
	Name   string `json:"name"`
}
