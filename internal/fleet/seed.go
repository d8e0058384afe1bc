package fleet

import "fmt"

// SeedVehicles returns the built-in demo fleet (Mumbai).
func SeedVehicles() []Vehicle {
	return []Vehicle{
		{
			ID: "MH01AB1234", RouteID: "258", RouteLabel: "Andheri to Bandra",
			Lat: 19.1136, Lng: 72.8697, Heading: 45, Speed: 25, Status: StatusActive,
			Passengers: 28, Capacity: 50, NextStop: "Versova Metro", EstimatedArrival: "3 mins",
			Driver: "Rajesh Kumar",
		},
		{
			ID: "MH01CD5678", RouteID: "449", RouteLabel: "CST to Borivali",
			Lat: 19.0760, Lng: 72.8777, Heading: 315, Speed: 30, Status: StatusActive,
			Passengers: 42, Capacity: 50, NextStop: "Dadar Station", EstimatedArrival: "5 mins",
			Driver: "Suresh Patil",
		},
		{
			ID: "MH01EF9012", RouteID: "132", RouteLabel: "Colaba to Malad",
			Lat: 19.0896, Lng: 72.8656, Heading: 180, Speed: 20, Status: StatusActive,
			Passengers: 35, Capacity: 45, NextStop: "Bandra Kurla Complex", EstimatedArrival: "2 mins",
			Driver: "Amit Shah",
		},
		{
			ID: "MH01GH3456", RouteID: "700", RouteLabel: "Thane to Churchgate",
			Lat: 19.1972, Lng: 72.9722, Heading: 225, Speed: 35, Status: StatusActive,
			Passengers: 18, Capacity: 50, NextStop: "Mulund Check Naka", EstimatedArrival: "4 mins",
			Driver: "Prakash Joshi",
		},
		{
			ID: "MH01IJ7890", RouteID: "503", RouteLabel: "Vashi to Fort",
			Lat: 19.0445, Lng: 73.0072, Heading: 270, Speed: 28, Status: StatusMaintenance,
			Passengers: 0, Capacity: 50, NextStop: "Service Depot", EstimatedArrival: "N/A",
			Driver: "Service Team",
		},
	}
}

type seedStop struct {
	name     string
	lat, lng float64
}

// SeedRoutes returns the stop sequences for the built-in fleet's routes.
func SeedRoutes() []Route {
	return []Route{
		seedRoute("132", "Colaba to Malad", []seedStop{
			{"Colaba Depot", 18.9067, 72.8147},
			{"Churchgate", 18.9322, 72.8264},
			{"Worli Naka", 19.0000, 72.8170},
			{"Bandra Kurla Complex", 19.0660, 72.8680},
			{"Santacruz East", 19.0800, 72.8550},
			{"Goregaon West", 19.1640, 72.8440},
			{"Malad Station", 19.1870, 72.8480},
		}),
		seedRoute("258", "Andheri to Bandra", []seedStop{
			{"Versova Metro", 19.1313, 72.8165},
			{"Andheri Station", 19.1197, 72.8464},
			{"Vile Parle", 19.0996, 72.8440},
			{"Santacruz", 19.0817, 72.8414},
			{"Khar Road", 19.0686, 72.8400},
			{"Bandra Station", 19.0544, 72.8406},
		}),
		seedRoute("449", "CST to Borivali", []seedStop{
			{"CST", 18.9402, 72.8356},
			{"Byculla", 18.9790, 72.8330},
			{"Dadar Station", 19.0178, 72.8478},
			{"Sion", 19.0390, 72.8619},
			{"Kurla Depot", 19.0728, 72.8826},
			{"Andheri East", 19.1155, 72.8540},
			{"Goregaon", 19.1646, 72.8493},
			{"Borivali Station", 19.2290, 72.8567},
		}),
		seedRoute("503", "Vashi to Fort", []seedStop{
			{"Vashi Depot", 19.0771, 72.9980},
			{"Mankhurd", 19.0480, 72.9320},
			{"Chembur", 19.0620, 72.9010},
			{"Sion", 19.0390, 72.8619},
			{"Wadala", 19.0170, 72.8580},
			{"Fort", 18.9340, 72.8360},
		}),
		seedRoute("700", "Thane to Churchgate", []seedStop{
			{"Thane Station", 19.1860, 72.9750},
			{"Mulund Check Naka", 19.1750, 72.9560},
			{"Bhandup", 19.1440, 72.9380},
			{"Ghatkopar", 19.0860, 72.9080},
			{"Sion", 19.0390, 72.8619},
			{"Dadar TT", 19.0190, 72.8440},
			{"Churchgate", 18.9322, 72.8264},
		}),
	}
}

// seedRoute spaces scheduled arrivals six minutes apart.
func seedRoute(id, label string, stops []seedStop) Route {
	r := Route{ID: id, Label: label, Stops: make([]Stop, len(stops))}
	for i, s := range stops {
		r.Stops[i] = Stop{
			ID:           fmt.Sprintf("%s-%02d", id, i+1),
			Name:         s.name,
			Lat:          s.lat,
			Lng:          s.lng,
			ArrivalLabel: fmt.Sprintf("%d mins", i*6),
		}
	}
	return r
}
