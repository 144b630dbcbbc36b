package ctdf

// Station as returned by a station search. ID is kept verbatim - depending on the
// source it is either a composite "A=1@O=Köln Hbf@...@L=8000207@" key or a bare EVA number.
type Station struct {
	ID          string `json:"id" groups:"basic,widget"`
	DisplayName string `json:"displayName" groups:"basic,widget"`
}

func (s *Station) String() string {
	if s == nil {
		return "<nil>"
	}

	return s.DisplayName
}

// Route is the commuter's configured station pair
type Route struct {
	Origin      *Station `json:"origin" groups:"basic,widget"`
	Destination *Station `json:"destination" groups:"basic,widget"`
}

func (r Route) Swapped() Route {
	return Route{
		Origin:      r.Destination,
		Destination: r.Origin,
	}
}

func (r Route) Complete() bool {
	return r.Origin != nil && r.Destination != nil
}
