package search

var mockResults = []Result{
	{
		ID:          "1",
		Title:       "Amazing Music Video 2024 - Official",
		Duration:    "3:45",
		Thumbnail:   "https://images.pexels.com/photos/1763075/pexels-photo-1763075.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://youtube.com/watch?v=dQw4w9WgXcQ",
		Platform:    "YouTube",
		Views:       "10.2M",
		Author:      "Music Artist",
		UploadDate:  "2024-01-15",
		Description: "Official music video featuring amazing visuals and great sound quality.",
	},
	{
		ID:          "2",
		Title:       "Trending Dance Mix 2024 | Best Electronic Music",
		Duration:    "45:20",
		Thumbnail:   "https://images.pexels.com/photos/1190297/pexels-photo-1190297.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://youtube.com/watch?v=example2",
		Platform:    "YouTube",
		Views:       "5.2M",
		Author:      "DJ MixMaster",
		UploadDate:  "2024-02-01",
		Description: "The hottest electronic dance music mix of 2024.",
	},
	{
		ID:          "3",
		Title:       "Acoustic Guitar Session - Relaxing Music",
		Duration:    "8:12",
		Thumbnail:   "https://images.pexels.com/photos/1105666/pexels-photo-1105666.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://youtube.com/watch?v=example3",
		Platform:    "YouTube",
		Views:       "2.1M",
		Author:      "Acoustic Sessions",
		UploadDate:  "2024-01-28",
		Description: "Beautiful acoustic guitar melodies for relaxation and study.",
	},
	{
		ID:          "4",
		Title:       "Podcast: Tech Talk - AI and Future",
		Duration:    "52:30",
		Thumbnail:   "https://images.pexels.com/photos/7688336/pexels-photo-7688336.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://soundcloud.com/techtalk/ai-future",
		Platform:    "SoundCloud",
		Views:       "850K",
		Author:      "Tech Talk Podcast",
		UploadDate:  "2024-02-10",
		Description: "Deep dive into artificial intelligence and its impact on the future.",
	},
	{
		ID:          "5",
		Title:       "Nature Documentary - Ocean Life",
		Duration:    "25:45",
		Thumbnail:   "https://images.pexels.com/photos/1001682/pexels-photo-1001682.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://vimeo.com/nature/ocean-life",
		Platform:    "Vimeo",
		Views:       "1.5M",
		Author:      "Nature Films",
		UploadDate:  "2024-01-20",
		Description: "Stunning 4K footage of marine life in the deep ocean.",
	},
	{
		ID:          "6",
		Title:       "Cooking Tutorial - Italian Pasta",
		Duration:    "12:30",
		Thumbnail:   "https://images.pexels.com/photos/1279330/pexels-photo-1279330.jpeg?auto=compress&cs=tinysrgb&w=400",
		URL:         "https://youtube.com/watch?v=pasta-tutorial",
		Platform:    "YouTube",
		Views:       "3.8M",
		Author:      "Chef Marco",
		UploadDate:  "2024-02-05",
		Description: "Learn to make authentic Italian pasta from scratch.",
	},
}
