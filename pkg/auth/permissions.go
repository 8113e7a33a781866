package auth

// Facebook permission names accepted in StartConfig.Permissions.
// See: https://developers.facebook.com/docs/permissions/reference

// PermissionPublicProfile is requested when no permissions are given.
const PermissionPublicProfile = "public_profile"

// User permissions.
const (
	PermissionUserAboutMe             = "user_about_me"
	PermissionUserActivities          = "user_activities"
	PermissionUserBirthday            = "user_birthday"
	PermissionUserCheckins            = "user_checkins"
	PermissionUserEducationHistory    = "user_education_history"
	PermissionUserEvents              = "user_events"
	PermissionUserGroups              = "user_groups"
	PermissionUserHometown            = "user_hometown"
	PermissionUserInterests           = "user_interests"
	PermissionUserLikes               = "user_likes"
	PermissionUserLocation            = "user_location"
	PermissionUserNotes               = "user_notes"
	PermissionUserOnlinePresence      = "user_online_presence"
	PermissionUserPhotos              = "user_photos"
	PermissionUserQuestions           = "user_questions"
	PermissionUserRelationships       = "user_relationships"
	PermissionUserRelationshipDetails = "user_relationship_details"
	PermissionUserReligionPolitics    = "user_religion_politics"
	PermissionUserStatus              = "user_status"
	PermissionUserVideos              = "user_videos"
	PermissionUserWebsite             = "user_website"
	PermissionUserWorkHistory         = "user_work_history"
	PermissionEmail                   = "email"
)

// Friends permissions.
const (
	PermissionFriendsAboutMe             = "friends_about_me"
	PermissionFriendsActivities          = "friends_activities"
	PermissionFriendsBirthday            = "friends_birthday"
	PermissionFriendsCheckins            = "friends_checkins"
	PermissionFriendsEducationHistory    = "friends_education_history"
	PermissionFriendsEvents              = "friends_events"
	PermissionFriendsGroups              = "friends_groups"
	PermissionFriendsHometown            = "friends_hometown"
	PermissionFriendsInterests           = "friends_interests"
	PermissionFriendsLikes               = "friends_likes"
	PermissionFriendsLocation            = "friends_location"
	PermissionFriendsNotes               = "friends_notes"
	PermissionFriendsOnlinePresence      = "friends_online_presence"
	PermissionFriendsPhotos              = "friends_photos"
	PermissionFriendsQuestions           = "friends_questions"
	PermissionFriendsRelationships       = "friends_relationships"
	PermissionFriendsRelationshipDetails = "friends_relationship_details"
	PermissionFriendsReligionPolitics    = "friends_religion_politics"
	PermissionFriendsStatus              = "friends_status"
	PermissionFriendsVideos              = "friends_videos"
	PermissionFriendsWebsite             = "friends_website"
	PermissionFriendsWorkHistory         = "friends_work_history"
)

// Extended permissions.
const (
	PermissionReadFriendLists     = "read_friendlists"
	PermissionReadInsights        = "read_insights"
	PermissionReadMailbox         = "read_mailbox"
	PermissionReadRequests        = "read_requests"
	PermissionReadStream          = "read_stream"
	PermissionXMPPLogin           = "xmpp_login"
	PermissionAdsManagement       = "ads_management"
	PermissionCreateEvent         = "create_event"
	PermissionManageFriendLists   = "manage_friendlists"
	PermissionManageNotifications = "manage_notifications"
	PermissionOfflineAccess       = "offline_access"
	PermissionPublishCheckins     = "publish_checkins"
	PermissionPublishStream       = "publish_stream"
	PermissionRSVPEvent           = "rsvp_event"
	PermissionPublishActions      = "publish_actions"
)

// Page permissions.
const (
	PermissionManagePages = "manage_pages"
)
